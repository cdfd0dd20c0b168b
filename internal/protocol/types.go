package protocol

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// weiPerEther is the exponent used when rendering wei as ether
const weiPerEther = -18

// SplitRequest asks the splitter to divide Value between First and Second
type SplitRequest struct {
	From   common.Address `json:"from"`
	First  common.Address `json:"first"`
	Second common.Address `json:"second"`
	Value  string         `json:"value"` // wei, decimal
}

// CallerRequest is used by withdraw, pause and unpause
type CallerRequest struct {
	From common.Address `json:"from"`
}

// TransferOwnershipRequest hands the owner role to NewOwner
type TransferOwnershipRequest struct {
	From     common.Address `json:"from"`
	NewOwner common.Address `json:"new_owner"`
}

// FaucetRequest credits native balance to an address
type FaucetRequest struct {
	Address common.Address `json:"address"`
	Amount  string         `json:"amount"`
}

// TxResponse is returned by every state-changing endpoint
type TxResponse struct {
	Success bool        `json:"success"`
	TxHash  common.Hash `json:"tx_hash"`
	Error   string      `json:"error,omitempty"`
	Amount  string      `json:"amount,omitempty"` // withdrawn amount
}

// BalanceResponse reports an amount in wei and ether
type BalanceResponse struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
	Ether   string         `json:"ether"`
}

// NewBalanceResponse renders bal for addr
func NewBalanceResponse(addr common.Address, bal *uint256.Int) BalanceResponse {
	return BalanceResponse{
		Address: addr,
		Balance: bal.Dec(),
		Ether:   FormatEther(bal),
	}
}

// OwnerResponse reports the splitter owner
type OwnerResponse struct {
	Owner common.Address `json:"owner"`
}

// PausedResponse reports the pause flag
type PausedResponse struct {
	Paused bool `json:"paused"`
}

// ParseAmount parses a non-negative decimal wei amount that fits in 256 bits.
// An empty string is zero.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	amount, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", s)
	}
	return amount, nil
}

// FormatEther renders a wei amount as an ether decimal string
func FormatEther(wei *uint256.Int) string {
	return decimal.NewFromBigInt(wei.ToBig(), weiPerEther).String()
}
