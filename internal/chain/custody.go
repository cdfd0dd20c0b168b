package chain

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrTransferRejected is returned when a recipient refuses incoming value.
var ErrTransferRejected = errors.New("recipient rejected transfer")

// Custody pays splitter withdrawals out of the contract's native balance.
type Custody struct {
	state    *State
	contract common.Address

	mu      sync.RWMutex
	rejects map[common.Address]bool
}

func NewCustody(st *State, contract common.Address) *Custody {
	return &Custody{
		state:    st,
		contract: contract,
		rejects:  make(map[common.Address]bool),
	}
}

// Address returns the custody (contract) account
func (c *Custody) Address() common.Address {
	return c.contract
}

// Reject makes every future transfer to addr fail, like a contract whose
// fallback reverts.
func (c *Custody) Reject(addr common.Address, reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reject {
		c.rejects[addr] = true
	} else {
		delete(c.rejects, addr)
	}
}

// Deposit moves attached value from the sender into custody
func (c *Custody) Deposit(from common.Address, amount *uint256.Int) error {
	return c.state.Transfer(from, c.contract, amount)
}

// Transfer implements splitter.Transferer
func (c *Custody) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	rejected := c.rejects[to]
	c.mu.RUnlock()
	if rejected {
		return ErrTransferRejected
	}
	return c.state.Transfer(c.contract, to, amount)
}
