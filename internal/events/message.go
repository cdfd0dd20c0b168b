package events

import (
	"time"

	"github.com/andreafspeziale/splitter-contract/internal/splitter"
	"github.com/ethereum/go-ethereum/common"
)

// Message is the published form of a splitter event
type Message struct {
	Name     string         `json:"name"`
	Contract common.Address `json:"contract"`
	TxHash   common.Hash    `json:"tx_hash,omitempty"`
	Block    uint64         `json:"block,omitempty"`
	Time     time.Time      `json:"time"`
	Fields   splitter.Event `json:"fields"`
}

// NewMessage wraps ev for publishing
func NewMessage(contract common.Address, txHash common.Hash, block uint64, ev splitter.Event) Message {
	return Message{
		Name:     ev.Name(),
		Contract: contract,
		TxHash:   txHash,
		Block:    block,
		Time:     time.Now().UTC(),
		Fields:   ev,
	}
}
