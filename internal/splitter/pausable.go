package splitter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Paused reports whether Split is currently halted.
func (s *Splitter) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Pause halts Split. Pausing an already paused splitter succeeds without
// emitting anything.
func (s *Splitter) Pause(ctx context.Context, caller common.Address) error {
	return s.setPaused(ctx, caller, true)
}

// Unpause resumes Split. Same idempotency rules as Pause.
func (s *Splitter) Unpause(ctx context.Context, caller common.Address) error {
	return s.setPaused(ctx, caller, false)
}

func (s *Splitter) setPaused(ctx context.Context, caller common.Address, paused bool) error {
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
	changed := s.paused != paused
	s.paused = paused
	s.mu.Unlock()

	if !changed {
		return nil
	}
	if paused {
		s.emitter.Emit(Paused{Account: caller})
	} else {
		s.emitter.Emit(Unpaused{Account: caller})
	}
	return nil
}
