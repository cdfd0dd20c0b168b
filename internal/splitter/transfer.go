package splitter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transferer moves value out of the splitter's custody.
// The context passed to Transfer carries the active call; any call made back
// into the same Splitter with it is rejected with ErrReentrantCall.
//
// Reentrancy is only recognized through that context. A call back into the
// Splitter made with an unrelated context waits for the call lock, which the
// running Withdraw holds until Transfer returns: without a deadline on that
// context the two block each other forever.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(ctx context.Context, to common.Address, amount *uint256.Int) error

func (f TransferFunc) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return f(ctx, to, amount)
}

// Emitter receives notifications. Emit must not block.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}
