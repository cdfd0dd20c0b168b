package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/andreafspeziale/splitter-contract/internal/splitter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/holiman/uint256"
)

const (
	// LedgerStoreCacheMB is the LevelDB block cache size in MB.
	LedgerStoreCacheMB = 16

	// LedgerStoreHandles is the maximum number of open file handles for LevelDB.
	LedgerStoreHandles = 16
)

var (
	ownerKey      = []byte("owner")
	pausedKey     = []byte("paused")
	balancePrefix = []byte("bal:")
)

// ErrNotFound is returned by Load when nothing was ever saved.
var ErrNotFound = errors.New("ledger state not found")

// LedgerStore persists the splitter ledger: owner, pause flag and every
// non-zero balance. Zeroed balances are deleted.
type LedgerStore struct {
	db     ethdb.Database
	mu     sync.RWMutex
	closed bool
}

// NewLedgerStore opens a LevelDB store at path.
// If path is empty or storage fails, falls back to in-memory storage.
func NewLedgerStore(path string) *LedgerStore {
	var db ethdb.Database

	if path != "" {
		if mkErr := os.MkdirAll(path, 0755); mkErr != nil {
			log.Printf("[LedgerStore] Failed to create directory %s: %v, using in-memory", path, mkErr)
			db = rawdb.NewMemoryDatabase()
		} else {
			ldb, ldbErr := leveldb.New(path, LedgerStoreCacheMB, LedgerStoreHandles, "", false)
			if ldbErr != nil {
				log.Printf("[LedgerStore] Failed to open LevelDB at %s: %v, using in-memory", path, ldbErr)
				db = rawdb.NewMemoryDatabase()
			} else {
				db = rawdb.NewDatabase(ldb)
				log.Printf("[LedgerStore] Opened persistent storage at %s", path)
			}
		}
	} else {
		db = rawdb.NewMemoryDatabase()
		log.Printf("[LedgerStore] Using in-memory storage (no path specified)")
	}

	return &LedgerStore{db: db}
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte{}, balancePrefix...), addr.Bytes()...)
}

// Save replaces the stored ledger with st in a single batch.
func (ls *LedgerStore) Save(st splitter.State) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return fmt.Errorf("ledger store is closed")
	}

	batch := ls.db.NewBatch()

	// drop entries that are no longer in the ledger
	it := ls.db.NewIterator(balancePrefix, nil)
	for it.Next() {
		addr := common.BytesToAddress(it.Key()[len(balancePrefix):])
		if bal, ok := st.Balances[addr]; !ok || bal.IsZero() {
			if err := batch.Delete(common.CopyBytes(it.Key())); err != nil {
				it.Release()
				return err
			}
		}
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("scan balances: %w", err)
	}

	if err := batch.Put(ownerKey, st.Owner.Bytes()); err != nil {
		return err
	}
	paused := []byte{0}
	if st.Paused {
		paused[0] = 1
	}
	if err := batch.Put(pausedKey, paused); err != nil {
		return err
	}
	for addr, bal := range st.Balances {
		if bal == nil || bal.IsZero() {
			continue
		}
		if err := batch.Put(balanceKey(addr), bal.Bytes()); err != nil {
			return err
		}
	}
	return batch.Write()
}

// Load returns the stored ledger, or ErrNotFound if nothing was saved yet.
func (ls *LedgerStore) Load() (splitter.State, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	if ls.closed {
		return splitter.State{}, fmt.Errorf("ledger store is closed")
	}

	ownerBytes, err := ls.db.Get(ownerKey)
	if err != nil || len(ownerBytes) == 0 {
		return splitter.State{}, ErrNotFound
	}
	st := splitter.State{
		Owner:    common.BytesToAddress(ownerBytes),
		Balances: make(map[common.Address]*uint256.Int),
	}
	if paused, err := ls.db.Get(pausedKey); err == nil && len(paused) == 1 {
		st.Paused = paused[0] == 1
	}

	it := ls.db.NewIterator(balancePrefix, nil)
	defer it.Release()
	for it.Next() {
		addr := common.BytesToAddress(it.Key()[len(balancePrefix):])
		st.Balances[addr] = new(uint256.Int).SetBytes(it.Value())
	}
	if err := it.Error(); err != nil {
		return splitter.State{}, fmt.Errorf("scan balances: %w", err)
	}
	return st, nil
}

// Close gracefully closes the underlying database
func (ls *LedgerStore) Close() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return nil
	}

	ls.closed = true
	return ls.db.Close()
}
