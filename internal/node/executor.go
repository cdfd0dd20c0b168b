package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/andreafspeziale/splitter-contract/internal/chain"
	"github.com/andreafspeziale/splitter-contract/internal/events"
	"github.com/andreafspeziale/splitter-contract/internal/splitter"
	"github.com/andreafspeziale/splitter-contract/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Transaction method names, recorded in receipts
const (
	MethodDeploy            = "deploy"
	MethodSplit             = "split"
	MethodWithdraw          = "withdraw"
	MethodPause             = "pause"
	MethodUnpause           = "unpause"
	MethodTransferOwnership = "transferOwnership"
)

// ErrPersistLedger is returned when a transaction's ledger changes could not
// be saved. The transaction is rolled back.
var ErrPersistLedger = errors.New("ledger persistence failed")

// Enqueuer accepts published events without blocking. *events.Dispatcher
// implements it.
type Enqueuer interface {
	Enqueue(msg events.Message)
}

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	ChainID     uint64
	Deployer    common.Address
	StartPaused bool
	Store       *store.LedgerStore // nil disables persistence
	Events      Enqueuer           // nil disables publishing
}

// Executor runs splitter calls as transactions against the chain state.
// Each transaction is applied atomically: if the ledger rejects the call,
// native balance moves made on its behalf are reverted.
type Executor struct {
	txMu sync.Mutex // one transaction at a time

	chainID  uint64
	deployer common.Address
	state    *chain.State
	custody  *chain.Custody
	ledger   *splitter.Splitter
	store    *store.LedgerStore
	events   Enqueuer
	receipts *ReceiptStore

	evMu    sync.Mutex
	pending []splitter.Event
}

// ContractAddress returns where a deployer's splitter lives: the CREATE
// address of the deployer's first nonce.
func ContractAddress(deployer common.Address) common.Address {
	return crypto.CreateAddress(deployer, 0)
}

// NewExecutor restores the splitter from cfg.Store when a saved ledger exists
// and deploys a fresh one otherwise.
func NewExecutor(st *chain.State, cfg ExecutorConfig) (*Executor, error) {
	if cfg.Deployer == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero deployer", splitter.ErrInvalidArgument)
	}
	contract := ContractAddress(cfg.Deployer)
	e := &Executor{
		chainID:  cfg.ChainID,
		deployer: cfg.Deployer,
		state:    st,
		custody:  chain.NewCustody(st, contract),
		store:    cfg.Store,
		events:   cfg.Events,
		receipts: NewReceiptStore(),
	}
	emitter := splitter.WithEmitter(splitter.EmitterFunc(e.collect))

	if e.store != nil {
		saved, err := e.store.Load()
		switch {
		case err == nil:
			ledger, err := splitter.Restore(saved, e.custody, emitter)
			if err != nil {
				return nil, fmt.Errorf("restore ledger: %w", err)
			}
			e.ledger = ledger
			e.checkCustody()
			log.Printf("[Executor] Restored splitter %s (owner %s, %d balances)",
				contract.Hex(), saved.Owner.Hex(), len(saved.Balances))
			return e, nil
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("load ledger: %w", err)
		}
	}

	if _, err := e.deploy(emitter, splitter.WithPaused(cfg.StartPaused)); err != nil {
		return nil, err
	}
	return e, nil
}

// deploy creates the splitter and records the deployment receipt.
// The constructor sets the owner, which is logged as a transfer from the
// zero address.
func (e *Executor) deploy(opts ...splitter.Option) (common.Hash, error) {
	e.txMu.Lock()
	defer e.txMu.Unlock()

	ledger, err := splitter.Deploy(e.deployer, nil, e.custody, opts...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("deploy splitter: %w", err)
	}
	e.ledger = ledger
	if err := e.save(); err != nil {
		return common.Hash{}, err
	}

	txHash := newTxHash()
	e.state.IncNonce(e.deployer)
	contract := e.custody.Address()
	e.collect(splitter.OwnershipTransferred{NewOwner: e.deployer})
	receipt, err := e.seal(txHash, e.deployer, MethodDeploy, nil)
	if err != nil {
		return common.Hash{}, err
	}
	receipt.ContractAddress = &contract
	e.receipts.AddReceipt(receipt)
	log.Printf("[Executor] Deployed splitter %s (owner %s, paused %t, tx %s)",
		contract.Hex(), e.deployer.Hex(), ledger.Paused(), txHash.Hex())
	return txHash, nil
}

// checkCustody warns when the restored ledger owes more than custody holds
func (e *Executor) checkCustody() {
	held := e.state.GetBalance(e.custody.Address())
	owed := e.ledger.Outstanding()
	if held.Cmp(owed) < 0 {
		log.Printf("[Executor] WARNING: custody %s holds %s but ledger owes %s",
			e.custody.Address().Hex(), held.Dec(), owed.Dec())
	}
}

func (e *Executor) collect(ev splitter.Event) {
	e.evMu.Lock()
	defer e.evMu.Unlock()
	e.pending = append(e.pending, ev)
}

func (e *Executor) drain() []splitter.Event {
	e.evMu.Lock()
	defer e.evMu.Unlock()
	evs := e.pending
	e.pending = nil
	return evs
}

func newTxHash() common.Hash {
	id := uuid.New()
	return crypto.Keccak256Hash(id[:])
}

// execute applies fn as one transaction from sender. The ledger is saved
// before the block is committed; if fn fails or the save fails, chain state
// and ledger are rolled back and a failed receipt is stored.
func (e *Executor) execute(ctx context.Context, from common.Address, method string, fn func(ctx context.Context) error) (common.Hash, error) {
	e.txMu.Lock()
	defer e.txMu.Unlock()

	txHash := newTxHash()
	before := e.ledger.State()
	snap := e.state.Snapshot()
	e.drain()

	txErr := fn(ctx)
	if txErr == nil {
		if err := e.save(); err != nil {
			txErr = err
			e.rollbackLedger(before)
		}
	}
	if txErr != nil {
		e.state.RevertToSnapshot(snap)
		e.drain()
	}
	e.state.IncNonce(from)

	receipt, err := e.seal(txHash, from, method, txErr)
	if err != nil {
		if txErr == nil {
			// saved but not committed: put the ledger back in line with the chain
			e.rollbackLedger(before)
			if serr := e.save(); serr != nil {
				log.Printf("[Executor] Failed to restore saved ledger after tx %s: %v", txHash.Hex(), serr)
			}
		}
		return txHash, err
	}
	e.receipts.AddReceipt(receipt)

	if txErr != nil {
		log.Printf("[Executor] %s from %s failed (tx %s): %v", method, from.Hex(), txHash.Hex(), txErr)
		return txHash, txErr
	}
	log.Printf("[Executor] %s from %s applied in block %d (tx %s, %d logs)",
		method, from.Hex(), receipt.BlockNumber.ToInt().Uint64(), txHash.Hex(), len(receipt.Logs))
	return txHash, nil
}

// save writes the current ledger to the store, if any
func (e *Executor) save() error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(e.ledger.State()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistLedger, err)
	}
	return nil
}

// rollbackLedger puts the in-memory ledger back to before. Must be called
// with txMu held.
func (e *Executor) rollbackLedger(before splitter.State) {
	if err := e.ledger.Reset(context.Background(), before); err != nil {
		log.Printf("[Executor] Failed to roll back ledger: %v", err)
	}
}

// seal commits the block, builds the receipt for the pending events and
// hands them to publishing. Must be called with txMu held.
func (e *Executor) seal(txHash common.Hash, from common.Address, method string, txErr error) (*Receipt, error) {
	root, err := e.state.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit block: %w", err)
	}
	block := e.state.BlockNumber()
	contract := e.custody.Address()
	evs := e.drain()

	logs := make([]*types.Log, 0, len(evs))
	for i, ev := range evs {
		l := ev.Log(contract)
		l.TxHash = txHash
		l.BlockNumber = block
		l.Index = uint(i)
		logs = append(logs, l)
	}

	receipt := &Receipt{
		TxHash:      txHash,
		BlockNumber: (*hexutil.Big)(new(big.Int).SetUint64(block)),
		Root:        root,
		From:        from,
		To:          contract,
		Method:      method,
		Logs:        logs,
		LogsBloom:   logsBloom(logs),
		Status:      ReceiptStatusSuccessful,
	}
	if txErr != nil {
		receipt.Status = ReceiptStatusFailed
		receipt.Error = txErr.Error()
		return receipt, nil
	}

	if e.events != nil {
		for _, ev := range evs {
			e.events.Enqueue(events.NewMessage(contract, txHash, block, ev))
		}
	}
	return receipt, nil
}

// Split moves value from the caller into custody and credits half of it to
// each recipient.
func (e *Executor) Split(ctx context.Context, from, first, second common.Address, value *uint256.Int) (common.Hash, error) {
	return e.execute(ctx, from, MethodSplit, func(ctx context.Context) error {
		// a paused splitter rejects before any value moves
		if e.ledger.Paused() {
			return splitter.ErrOperationPaused
		}
		if value != nil && !value.IsZero() {
			if err := e.custody.Deposit(from, value); err != nil {
				return err
			}
		}
		return e.ledger.Split(ctx, from, first, second, value)
	})
}

// Withdraw pays out the caller's balance and returns the amount paid
func (e *Executor) Withdraw(ctx context.Context, from common.Address) (common.Hash, *uint256.Int, error) {
	var paid *uint256.Int
	txHash, err := e.execute(ctx, from, MethodWithdraw, func(ctx context.Context) error {
		amount, err := e.ledger.Withdraw(ctx, from)
		paid = amount
		return err
	})
	if err != nil {
		return txHash, nil, err
	}
	return txHash, paid, nil
}

func (e *Executor) Pause(ctx context.Context, from common.Address) (common.Hash, error) {
	return e.execute(ctx, from, MethodPause, func(ctx context.Context) error {
		return e.ledger.Pause(ctx, from)
	})
}

func (e *Executor) Unpause(ctx context.Context, from common.Address) (common.Hash, error) {
	return e.execute(ctx, from, MethodUnpause, func(ctx context.Context) error {
		return e.ledger.Unpause(ctx, from)
	})
}

func (e *Executor) TransferOwnership(ctx context.Context, from, newOwner common.Address) (common.Hash, error) {
	return e.execute(ctx, from, MethodTransferOwnership, func(ctx context.Context) error {
		return e.ledger.TransferOwnership(ctx, from, newOwner)
	})
}

// Faucet credits native balance to addr and seals a block
func (e *Executor) Faucet(addr common.Address, amount *uint256.Int) error {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	e.state.Credit(addr, amount)
	if _, err := e.state.Commit(); err != nil {
		return fmt.Errorf("commit faucet: %w", err)
	}
	return nil
}

// Reject makes payouts to addr fail (test hook for recipients that refuse value)
func (e *Executor) Reject(addr common.Address, reject bool) {
	e.custody.Reject(addr, reject)
}

// Read-only accessors

func (e *Executor) ChainID() uint64           { return e.chainID }
func (e *Executor) Contract() common.Address  { return e.custody.Address() }
func (e *Executor) Deployer() common.Address  { return e.deployer }
func (e *Executor) Owner() common.Address     { return e.ledger.Owner() }
func (e *Executor) Paused() bool              { return e.ledger.Paused() }
func (e *Executor) BlockNumber() uint64       { return e.state.BlockNumber() }
func (e *Executor) StateRoot() common.Hash    { return e.state.StateRoot() }
func (e *Executor) Outstanding() *uint256.Int { return e.ledger.Outstanding() }
func (e *Executor) InFlight() *uint256.Int    { return e.ledger.InFlight() }

func (e *Executor) Balances(addr common.Address) *uint256.Int {
	return e.ledger.Balances(addr)
}

// NativeBalance returns the chain balance of addr
func (e *Executor) NativeBalance(addr common.Address) *uint256.Int {
	return e.state.GetBalance(addr)
}

// CustodyBalance returns the native balance held by the contract
func (e *Executor) CustodyBalance() *uint256.Int {
	return e.state.GetBalance(e.custody.Address())
}

func (e *Executor) Receipt(hash common.Hash) *Receipt {
	return e.receipts.GetReceipt(hash)
}
