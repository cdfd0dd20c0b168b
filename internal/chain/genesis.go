package chain

import (
	"crypto/sha256"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TestAccounts derives n deterministic account addresses.
func TestAccounts(n int) []common.Address {
	accounts := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		seed := fmt.Sprintf("splitter-test-account-%d", i)
		hash := sha256.Sum256([]byte(seed))
		accounts = append(accounts, common.BytesToAddress(hash[:]))
	}
	return accounts
}

// WriteGenesis creates the on-disk state under dir with the given balances
// and returns the committed root.
func WriteGenesis(dir string, alloc map[common.Address]*uint256.Int) (common.Hash, error) {
	st, err := OpenState(dir)
	if err != nil {
		return common.Hash{}, err
	}
	defer st.Close()

	for addr, bal := range alloc {
		st.Credit(addr, bal)
	}
	root, err := st.Commit()
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit genesis: %w", err)
	}
	log.Printf("[State] Genesis with %d accounts committed at %s", len(alloc), root.Hex())
	return root, nil
}
