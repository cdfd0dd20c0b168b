package splitter

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is a copy of everything a Splitter needs to be rebuilt.
// Balances only contains non-zero entries.
type State struct {
	Owner    common.Address
	Paused   bool
	Balances map[common.Address]*uint256.Int
}

// State returns a deep copy of the current ledger state.
// Amounts in flight are not part of the ledger and are not included.
func (s *Splitter) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Owner:    s.owner,
		Paused:   s.paused,
		Balances: make(map[common.Address]*uint256.Int, len(s.balances)),
	}
	for addr, bal := range s.balances {
		if !bal.IsZero() {
			st.Balances[addr] = bal.Clone()
		}
	}
	return st
}

// Restore rebuilds a Splitter from a saved State. The saved pause flag wins
// over WithPaused.
func Restore(st State, t Transferer, opts ...Option) (*Splitter, error) {
	if st.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero owner", ErrInvalidArgument)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil transferer", ErrInvalidArgument)
	}
	s := newSplitter(st.Owner, t)
	for _, opt := range opts {
		opt(s)
	}
	s.paused = st.Paused

	for addr, bal := range st.Balances {
		if bal == nil || bal.IsZero() {
			continue
		}
		total, overflow := new(uint256.Int).AddOverflow(s.outstanding, bal)
		if overflow {
			return nil, ErrBalanceOverflow
		}
		s.outstanding = total
		s.balances[addr] = bal.Clone()
	}
	return s, nil
}

// Reset replaces the ledger with st, typically a State taken before a call
// whose effects could not be made durable. It serializes with other calls.
func (s *Splitter) Reset(ctx context.Context, st State) error {
	if st.Owner == (common.Address{}) {
		return fmt.Errorf("%w: zero owner", ErrInvalidArgument)
	}
	balances := make(map[common.Address]*uint256.Int, len(st.Balances))
	outstanding := new(uint256.Int)
	for addr, bal := range st.Balances {
		if bal == nil || bal.IsZero() {
			continue
		}
		total, overflow := new(uint256.Int).AddOverflow(outstanding, bal)
		if overflow {
			return ErrBalanceOverflow
		}
		outstanding = total
		balances[addr] = bal.Clone()
	}

	_, exit, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer exit()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = st.Owner
	s.paused = st.Paused
	s.balances = balances
	s.outstanding = outstanding
	return nil
}
