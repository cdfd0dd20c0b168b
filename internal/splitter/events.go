package splitter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Event is a notification emitted after a successful state change.
// Log renders it the way the contract would have logged it on chain.
type Event interface {
	Name() string
	Log(contract common.Address) *types.Log
}

// Event signatures, hashed into topic 0 of each log
const (
	SigOwnershipTransferred = "OwnershipTransferred(address,address)"
	SigPaused               = "Paused(address)"
	SigUnpaused             = "Unpaused(address)"
	SigLogSplit             = "LogSplit(address,address,address,uint256)"
	SigLogWithdraw          = "LogWithdraw(address,uint256)"
)

var (
	addressArgs = abi.Arguments{{Name: "account", Type: mustType("address")}}
	amountArgs  = abi.Arguments{{Name: "amount", Type: mustType("uint256")}}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// EventTopic returns topic 0 for an event signature.
func EventTopic(sig string) common.Hash {
	return crypto.Keccak256Hash([]byte(sig))
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func packAmount(v *uint256.Int) []byte {
	data, err := amountArgs.Pack(v.ToBig())
	if err != nil {
		// uint256 always fits the abi type
		panic(err)
	}
	return data
}

func packAddress(addr common.Address) []byte {
	data, err := addressArgs.Pack(addr)
	if err != nil {
		panic(err)
	}
	return data
}

// UnpackAmount decodes the data section of a LogSplit or LogWithdraw log.
func UnpackAmount(data []byte) (*uint256.Int, error) {
	vals, err := amountArgs.Unpack(data)
	if err != nil {
		return nil, err
	}
	v, overflow := uint256.FromBig(vals[0].(*big.Int))
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return v, nil
}

type OwnershipTransferred struct {
	PreviousOwner common.Address `json:"previous_owner"`
	NewOwner      common.Address `json:"new_owner"`
}

func (e OwnershipTransferred) Name() string { return "OwnershipTransferred" }

func (e OwnershipTransferred) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			EventTopic(SigOwnershipTransferred),
			addressTopic(e.PreviousOwner),
			addressTopic(e.NewOwner),
		},
		Data: []byte{},
	}
}

type Paused struct {
	Account common.Address `json:"account"`
}

func (e Paused) Name() string { return "Paused" }

func (e Paused) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{EventTopic(SigPaused)},
		Data:    packAddress(e.Account),
	}
}

type Unpaused struct {
	Account common.Address `json:"account"`
}

func (e Unpaused) Name() string { return "Unpaused" }

func (e Unpaused) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{EventTopic(SigUnpaused)},
		Data:    packAddress(e.Account),
	}
}

// Split is emitted once per successful split; Share is what each recipient got.
type Split struct {
	Sender common.Address `json:"sender"`
	First  common.Address `json:"first"`
	Second common.Address `json:"second"`
	Share  *uint256.Int   `json:"share"`
}

func (e Split) Name() string { return "LogSplit" }

func (e Split) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			EventTopic(SigLogSplit),
			addressTopic(e.Sender),
			addressTopic(e.First),
			addressTopic(e.Second),
		},
		Data: packAmount(e.Share),
	}
}

type Withdraw struct {
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

func (e Withdraw) Name() string { return "LogWithdraw" }

func (e Withdraw) Log(contract common.Address) *types.Log {
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			EventTopic(SigLogWithdraw),
			addressTopic(e.Recipient),
		},
		Data: packAmount(e.Amount),
	}
}
