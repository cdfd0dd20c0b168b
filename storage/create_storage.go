package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andreafspeziale/splitter-contract/config"
	"github.com/andreafspeziale/splitter-contract/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AddressFile lists the funded test accounts, one per line
const AddressFile = "address.txt"

func main() {
	configPath := flag.String("config", "config/config.json", "Config file (JSON or YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		panic(err)
	}
	if cfg.StorageDir == "" {
		panic("storage_dir must be set to create genesis storage")
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		panic(err)
	}

	accounts := chain.TestAccounts(cfg.TestAccountNum)
	if err := WriteAddresses(filepath.Join(cfg.StorageDir, AddressFile), accounts); err != nil {
		panic(err)
	}

	genesis, err := cfg.GenesisWei()
	if err != nil {
		panic(err)
	}
	balance, overflow := uint256.FromBig(genesis)
	if overflow {
		panic("genesis balance exceeds 256 bits")
	}

	alloc := make(map[common.Address]*uint256.Int, len(accounts))
	for _, addr := range accounts {
		alloc[addr] = balance
	}
	// The configured owner needs funds to split
	if owner := cfg.OwnerAddress(); owner != (common.Address{}) {
		alloc[owner] = balance
	}

	root, err := chain.WriteGenesis(cfg.StorageDir, alloc)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Funded %d accounts with %s wei\n", len(alloc), balance.Dec())
	fmt.Printf("Commit Root: %v\n", root)
}

func WriteAddresses(path string, accounts []common.Address) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, addr := range accounts {
		if _, err := fmt.Fprintln(file, addr.Hex()); err != nil {
			return err
		}
	}
	return nil
}
