package splitter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Owner returns the current owner.
func (s *Splitter) Owner() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// onlyOwner must be called with s.mu held.
func (s *Splitter) onlyOwner(caller common.Address) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership hands the owner role to newOwner.
// Re-assigning the current owner is allowed and still emits an event.
func (s *Splitter) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	_, exit, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer exit()

	s.mu.Lock()
	if err := s.onlyOwner(caller); err != nil {
		s.mu.Unlock()
		return err
	}
	if newOwner == (common.Address{}) {
		s.mu.Unlock()
		return ErrInvalidArgument
	}
	previous := s.owner
	s.owner = newOwner
	s.mu.Unlock()

	s.emitter.Emit(OwnershipTransferred{PreviousOwner: previous, NewOwner: newOwner})
	return nil
}
