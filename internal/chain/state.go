package chain

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

const (
	// RootFile holds the hex state root next to the chaindata directory.
	RootFile = "root.txt"
	// BlockFile holds the height of the last committed block, written
	// before RootFile so heights never repeat across restarts.
	BlockFile = "block.txt"
	// ChainDataDir is the LevelDB directory under the storage dir.
	ChainDataDir = "chaindata"

	stateCacheMB = 128
	stateHandles = 1024
)

// State wraps geth's StateDB and holds the native balances of every account,
// including the splitter contract's custody account.
type State struct {
	mu       sync.Mutex
	disk     ethdb.Database
	db       state.Database
	stateDB  *state.StateDB
	dir      string // empty for in-memory state
	blockNum uint64
}

// NewMemoryState creates an empty in-memory state (for testing)
func NewMemoryState() (*State, error) {
	disk := rawdb.NewMemoryDatabase()
	db := state.NewDatabase(triedb.NewDatabase(disk, nil), nil)
	stateDB, err := state.New(types.EmptyRootHash, db)
	if err != nil {
		return nil, err
	}
	return &State{disk: disk, db: db, stateDB: stateDB}, nil
}

// OpenState opens the LevelDB-backed state under dir at the root recorded in
// dir/root.txt and the height in dir/block.txt. Missing files start from the
// empty root at block 0.
func OpenState(dir string) (*State, error) {
	blockNum, err := readBlockNumber(dir)
	if err != nil {
		return nil, err
	}

	root := types.EmptyRootHash
	data, err := os.ReadFile(filepath.Join(dir, RootFile))
	switch {
	case err == nil:
		rootStr := strings.TrimSpace(string(data))
		if !(len(rootStr) == 66 && (rootStr[:2] == "0x" || rootStr[:2] == "0X")) {
			return nil, fmt.Errorf("invalid state root format: %q", rootStr)
		}
		root = common.HexToHash(rootStr)
	case os.IsNotExist(err):
		log.Printf("[State] No root file in %s, starting from empty state", dir)
	default:
		return nil, fmt.Errorf("read state root: %w", err)
	}

	ldb, err := leveldb.New(filepath.Join(dir, ChainDataDir), stateCacheMB, stateHandles, "", false)
	if err != nil {
		return nil, fmt.Errorf("open chaindata: %w", err)
	}
	disk := rawdb.NewDatabase(ldb)
	db := state.NewDatabase(triedb.NewDatabase(disk, nil), nil)
	stateDB, err := state.New(root, db)
	if err != nil {
		disk.Close()
		return nil, fmt.Errorf("open state at %s: %w", root.Hex(), err)
	}
	return &State{disk: disk, db: db, stateDB: stateDB, dir: dir, blockNum: blockNum}, nil
}

func readBlockNumber(dir string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(dir, BlockFile))
	switch {
	case err == nil:
		n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid block number: %w", err)
		}
		return n, nil
	case os.IsNotExist(err):
		return 0, nil
	default:
		return 0, fmt.Errorf("read block number: %w", err)
	}
}

// GetBalance returns the native balance of addr
func (s *State) GetBalance(addr common.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateDB.GetBalance(addr).Clone()
}

// GetNonce returns account nonce
func (s *State) GetNonce(addr common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateDB.GetNonce(addr)
}

// IncNonce bumps the nonce of addr and returns the previous value
func (s *State) IncNonce(addr common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce := s.stateDB.GetNonce(addr)
	s.stateDB.SetNonce(addr, nonce+1, tracing.NonceChangeUnspecified)
	return nonce
}

// Credit adds balance (faucet and genesis)
func (s *State) Credit(addr common.Address, amount *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateDB.AddBalance(addr, amount, tracing.BalanceChangeUnspecified)
}

// Debit removes balance, failing with ErrInsufficientFunds
func (s *State) Debit(addr common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateDB.GetBalance(addr).Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	s.stateDB.SubBalance(addr, amount, tracing.BalanceChangeUnspecified)
	return nil
}

// Transfer moves amount from one account to another
func (s *State) Transfer(from, to common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateDB.GetBalance(from).Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	s.stateDB.SubBalance(from, amount, tracing.BalanceChangeTransfer)
	s.stateDB.AddBalance(to, amount, tracing.BalanceChangeTransfer)
	return nil
}

// Snapshot creates a state snapshot for potential rollback
func (s *State) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateDB.Snapshot()
}

// RevertToSnapshot rolls back state to a previous snapshot
func (s *State) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateDB.RevertToSnapshot(id)
}

// StateRoot returns current state root (without committing)
func (s *State) StateRoot() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateDB.IntermediateRoot(false)
}

// BlockNumber returns the number of committed blocks
func (s *State) BlockNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockNum
}

// Commit seals the pending changes as the next block and returns the new root.
// For on-disk state the trie is flushed and the root file rewritten.
func (s *State) Commit() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.blockNum + 1
	root, err := s.stateDB.Commit(next, false, false)
	if err != nil {
		return common.Hash{}, err
	}
	if s.dir != "" {
		if err := s.db.TrieDB().Commit(root, false); err != nil {
			return common.Hash{}, fmt.Errorf("flush trie: %w", err)
		}
		if err := os.WriteFile(filepath.Join(s.dir, BlockFile), []byte(strconv.FormatUint(next, 10)), 0644); err != nil {
			return common.Hash{}, fmt.Errorf("write block number: %w", err)
		}
		if err := os.WriteFile(filepath.Join(s.dir, RootFile), []byte(root.Hex()), 0644); err != nil {
			return common.Hash{}, fmt.Errorf("write state root: %w", err)
		}
	}

	// Recreate StateDB at the new root so cached tries aren't reused after commit
	stateDB, err := state.New(root, s.db)
	if err != nil {
		log.Printf("[State] Failed to reload StateDB at root %s: %v", root.Hex(), err)
		return common.Hash{}, err
	}
	s.stateDB = stateDB
	s.blockNum = next
	return root, nil
}

// Close releases the underlying database
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.Close()
}

// Errors
var ErrInsufficientFunds = &StateError{"insufficient funds"}

type StateError struct {
	msg string
}

func (e *StateError) Error() string {
	return e.msg
}
