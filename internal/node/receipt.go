package node

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt statuses
const (
	ReceiptStatusFailed     = 0
	ReceiptStatusSuccessful = 1
)

// Receipt represents the result of a splitter transaction
type Receipt struct {
	TxHash          common.Hash     `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	Root            common.Hash     `json:"root"` // state root after the block
	From            common.Address  `json:"from"`
	To              common.Address  `json:"to"`
	Method          string          `json:"method"`
	ContractAddress *common.Address `json:"contractAddress"` // set on deployment only
	Logs            []*types.Log    `json:"logs"`
	LogsBloom       types.Bloom     `json:"logsBloom"`
	Status          hexutil.Uint64  `json:"status"`
	Error           string          `json:"error,omitempty"`
}

// Succeeded reports whether the transaction was applied
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}

// ReceiptStore manages transaction receipts in memory
type ReceiptStore struct {
	receipts map[common.Hash]*Receipt
	mu       sync.RWMutex
}

func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		receipts: make(map[common.Hash]*Receipt),
	}
}

func (s *ReceiptStore) AddReceipt(r *Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Store a copy to avoid aliasing caller's data
	s.receipts[r.TxHash] = r.DeepCopy()
}

func (s *ReceiptStore) GetReceipt(hash common.Hash) *Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.receipts[hash]
	if r == nil {
		return nil
	}
	return r.DeepCopy()
}

// Len returns the number of stored receipts
func (s *ReceiptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}

// DeepCopy creates a deep copy of the Receipt
func (r *Receipt) DeepCopy() *Receipt {
	if r == nil {
		return nil
	}

	result := &Receipt{
		TxHash:    r.TxHash,
		Root:      r.Root,
		From:      r.From,
		To:        r.To,
		Method:    r.Method,
		LogsBloom: r.LogsBloom,
		Status:    r.Status,
		Error:     r.Error,
	}

	if r.BlockNumber != nil {
		bn := hexutil.Big(*new(big.Int).Set(r.BlockNumber.ToInt()))
		result.BlockNumber = &bn
	}

	if r.ContractAddress != nil {
		ca := *r.ContractAddress
		result.ContractAddress = &ca
	}

	if r.Logs != nil {
		result.Logs = make([]*types.Log, len(r.Logs))
		for i, log := range r.Logs {
			if log == nil {
				continue
			}
			logCopy := *log
			if log.Topics != nil {
				logCopy.Topics = make([]common.Hash, len(log.Topics))
				copy(logCopy.Topics, log.Topics)
			}
			if log.Data != nil {
				logCopy.Data = make([]byte, len(log.Data))
				copy(logCopy.Data, log.Data)
			}
			result.Logs[i] = &logCopy
		}
	}

	return result
}

// logsBloom folds the address and topics of every log into a bloom filter
func logsBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}
