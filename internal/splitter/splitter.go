// Package splitter implements a custodial ledger that splits a payment evenly
// between two recipients and lets each recipient withdraw their share.
//
// All state-changing calls are serialized. Reads take a short read lock and
// may run while a payout is in progress.
package splitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Splitter holds the owner, the pause flag and the withdrawable balances.
type Splitter struct {
	calls chan struct{} // call lock, see enter

	mu          sync.RWMutex
	owner       common.Address
	paused      bool
	balances    map[common.Address]*uint256.Int
	outstanding *uint256.Int // sum of balances
	inFlight    *uint256.Int // debited, payout not yet confirmed

	transferer Transferer
	emitter    Emitter
}

// Option configures a Splitter at construction.
type Option func(*Splitter)

// WithPaused pre-seeds the pause flag.
func WithPaused(paused bool) Option {
	return func(s *Splitter) { s.paused = paused }
}

// WithEmitter sets the notification sink. The default drops everything.
func WithEmitter(e Emitter) Option {
	return func(s *Splitter) {
		if e != nil {
			s.emitter = e
		}
	}
}

func newSplitter(owner common.Address, t Transferer) *Splitter {
	return &Splitter{
		calls:       make(chan struct{}, 1),
		owner:       owner,
		balances:    make(map[common.Address]*uint256.Int),
		outstanding: new(uint256.Int),
		inFlight:    new(uint256.Int),
		transferer:  t,
		emitter:     nopEmitter{},
	}
}

// Deploy creates a splitter owned by deployer. The constructor is not
// payable: any attached value is rejected with ErrNonPayable.
func Deploy(deployer common.Address, value *uint256.Int, t Transferer, opts ...Option) (*Splitter, error) {
	if value != nil && !value.IsZero() {
		return nil, ErrNonPayable
	}
	if deployer == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero deployer", ErrInvalidArgument)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil transferer", ErrInvalidArgument)
	}
	s := newSplitter(deployer, t)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// balanceOf returns the entry for addr, zero if it was never credited.
// Must be called with s.mu held.
func (s *Splitter) balanceOf(addr common.Address) *uint256.Int {
	if bal, ok := s.balances[addr]; ok {
		return bal
	}
	return new(uint256.Int)
}

// Balances returns the withdrawable amount for addr.
func (s *Splitter) Balances(addr common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceOf(addr).Clone()
}

// Outstanding returns the sum of all withdrawable balances.
func (s *Splitter) Outstanding() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outstanding.Clone()
}

// InFlight returns the amount debited from the ledger whose payout has not
// completed yet.
func (s *Splitter) InFlight() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight.Clone()
}

// Split credits value/2 to each recipient. The checks run in a fixed order
// and the first failure aborts the call without touching any state.
func (s *Splitter) Split(ctx context.Context, caller, first, second common.Address, value *uint256.Int) error {
	_, exit, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer exit()

	ev, err := s.credit(caller, first, second, value)
	if err != nil {
		return err
	}
	s.emitter.Emit(ev)
	return nil
}

func (s *Splitter) credit(caller, first, second common.Address, value *uint256.Int) (Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return Split{}, ErrOperationPaused
	}
	if value == nil || value.IsZero() {
		return Split{}, ErrZeroAmount
	}
	if value.Uint64()&1 != 0 {
		return Split{}, ErrOddAmount
	}
	if first == caller || second == caller {
		return Split{}, ErrSelfDealingForbidden
	}
	if first == second {
		return Split{}, ErrDuplicateRecipient
	}
	if first == (common.Address{}) || second == (common.Address{}) {
		return Split{}, ErrInvalidRecipient
	}

	share := new(uint256.Int).Rsh(value, 1)
	firstBal, overflowFirst := new(uint256.Int).AddOverflow(s.balanceOf(first), share)
	secondBal, overflowSecond := new(uint256.Int).AddOverflow(s.balanceOf(second), share)
	total, overflowTotal := new(uint256.Int).AddOverflow(s.outstanding, value)
	if overflowFirst || overflowSecond || overflowTotal {
		return Split{}, ErrBalanceOverflow
	}

	s.balances[first] = firstBal
	s.balances[second] = secondBal
	s.outstanding = total

	return Split{Sender: caller, First: first, Second: second, Share: share.Clone()}, nil
}

// Withdraw pays out the caller's whole balance and returns the amount paid.
// A zero balance is a no-op. Withdraw is never blocked by Pause.
//
// The ledger entry is zeroed before the transfer runs; if the transfer fails
// the entry is restored and ErrTransferFailed is returned.
func (s *Splitter) Withdraw(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	callCtx, exit, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	s.mu.Lock()
	amount := s.balanceOf(caller).Clone()
	if amount.IsZero() {
		s.mu.Unlock()
		return amount, nil
	}
	s.balances[caller] = new(uint256.Int)
	s.outstanding.Sub(s.outstanding, amount)
	s.inFlight.Add(s.inFlight, amount)
	s.mu.Unlock()

	terr := s.transferer.Transfer(callCtx, caller, amount.Clone())

	s.mu.Lock()
	s.inFlight.Sub(s.inFlight, amount)
	if terr != nil {
		s.balances[caller] = new(uint256.Int).Add(s.balanceOf(caller), amount)
		s.outstanding.Add(s.outstanding, amount)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, terr)
	}
	s.mu.Unlock()

	s.emitter.Emit(Withdraw{Recipient: caller, Amount: amount.Clone()})
	return amount, nil
}
