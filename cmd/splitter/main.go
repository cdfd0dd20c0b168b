package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/andreafspeziale/splitter-contract/config"
	"github.com/andreafspeziale/splitter-contract/internal/chain"
	"github.com/andreafspeziale/splitter-contract/internal/events"
	"github.com/andreafspeziale/splitter-contract/internal/network"
	"github.com/andreafspeziale/splitter-contract/internal/node"
	"github.com/andreafspeziale/splitter-contract/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// LedgerDir is the ledger store directory under the storage dir
const LedgerDir = "ledger"

func main() {
	configPath := flag.String("config", "config/config.json", "Config file (JSON or YAML)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with SPLITTER_* overrides")
	port := flag.Int("port", 0, "HTTP port (0 = use config)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to read %s: %v", *envFile, err)
	}

	// Config file first, then environment overrides
	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Printf("No %s found, using defaults", *configPath)
		cfg = config.Default()
	}
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	accounts := chain.TestAccounts(cfg.TestAccountNum)
	deployer := cfg.OwnerAddress()
	if deployer == (common.Address{}) {
		if len(accounts) == 0 {
			log.Fatal("owner required when test_account_num is 0")
		}
		deployer = accounts[0]
		log.Printf("No owner configured, deploying from test account %s", deployer.Hex())
	}

	st, ledgerStore, err := openStorage(cfg, accounts)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	dispatcher := newDispatcher(cfg)
	execCfg := node.ExecutorConfig{
		ChainID:     cfg.ChainID,
		Deployer:    deployer,
		StartPaused: cfg.StartPaused,
		Store:       ledgerStore,
	}
	if dispatcher != nil {
		execCfg.Events = dispatcher
	}

	exec, err := node.NewExecutor(st, execCfg)
	if err != nil {
		log.Fatalf("Failed to start splitter: %v", err)
	}
	server := node.NewServer(exec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}

	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			log.Printf("Failed to close event publishers: %v", err)
		}
	}
	if ledgerStore != nil {
		ledgerStore.Close()
	}
	st.Close()
}

// openStorage opens the on-disk state when a storage dir is configured.
// Otherwise the state lives in memory and the test accounts are funded.
func openStorage(cfg *config.Config, accounts []common.Address) (*chain.State, *store.LedgerStore, error) {
	if cfg.StorageDir != "" {
		st, err := chain.OpenState(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return st, store.NewLedgerStore(filepath.Join(cfg.StorageDir, LedgerDir)), nil
	}

	st, err := chain.NewMemoryState()
	if err != nil {
		return nil, nil, err
	}
	genesis, err := cfg.GenesisWei()
	if err != nil {
		return nil, nil, err
	}
	balance, _ := uint256.FromBig(genesis)
	for _, addr := range accounts {
		st.Credit(addr, balance)
	}
	if _, err := st.Commit(); err != nil {
		return nil, nil, err
	}
	log.Printf("In-memory state with %d funded test accounts", len(accounts))
	return st, nil, nil
}

func newDispatcher(cfg *config.Config) *events.Dispatcher {
	var publishers []events.Publisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		publishers = append(publishers, events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		log.Printf("Publishing events to Kafka topic %s", cfg.Events.KafkaTopic)
	}
	if cfg.Events.WebhookURL != "" {
		if cfg.Network.DelayEnabled {
			log.Printf("Network delay simulation enabled: %d-%dms",
				cfg.Network.MinDelayMs, cfg.Network.MaxDelayMs)
		}
		client := network.NewHTTPClient(cfg.Network, 10*time.Second)
		publishers = append(publishers, events.NewWebhookPublisher(cfg.Events.WebhookURL, client))
		log.Printf("Publishing events to %s", cfg.Events.WebhookURL)
	}
	if len(publishers) == 0 {
		return nil
	}
	return events.NewDispatcher(cfg.Events.Buffer, publishers...)
}
