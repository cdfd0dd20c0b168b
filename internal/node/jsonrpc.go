package node

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultChainID is used when none is configured
const DefaultChainID = 1337

type jsonRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// MarshalJSON always writes "result" on success, null included, and drops it
// on error.
func (r jsonRPCResponse) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string      `json:"jsonrpc"`
			Error   *rpcError   `json:"error"`
			ID      interface{} `json:"id"`
		}{r.JSONRPC, r.Error, r.ID})
	}
	return json.Marshal(struct {
		JSONRPC string      `json:"jsonrpc"`
		Result  interface{} `json:"result"`
		ID      interface{} `json:"id"`
	}{r.JSONRPC, r.Result, r.ID})
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	errInvalidAddress = &rpcError{-32602, "invalid address parameter"}
	errInvalidHash    = &rpcError{-32602, "invalid transaction hash"}
)

// addressParam decodes params[0] as an address
func addressParam(params []json.RawMessage) (common.Address, *rpcError) {
	var addr common.Address
	if len(params) == 0 {
		return addr, errInvalidAddress
	}
	if err := json.Unmarshal(params[0], &addr); err != nil {
		return addr, errInvalidAddress
	}
	return addr, nil
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result interface{}
	var rpcErr *rpcError

	switch req.Method {
	case "eth_chainId":
		result = hexutil.Uint64(s.exec.ChainID())

	case "eth_blockNumber":
		result = hexutil.Uint64(s.exec.BlockNumber())

	case "eth_getBalance":
		addr, perr := addressParam(req.Params)
		if perr != nil {
			rpcErr = perr
			break
		}
		result = (*hexutil.Big)(s.exec.NativeBalance(addr).ToBig())

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if len(req.Params) == 0 {
			rpcErr = errInvalidHash
			break
		}
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			rpcErr = errInvalidHash
			break
		}
		if receipt := s.exec.Receipt(hash); receipt != nil {
			result = receipt
		}

	case "splitter_owner":
		result = s.exec.Owner()

	case "splitter_paused":
		result = s.exec.Paused()

	case "splitter_balances":
		addr, perr := addressParam(req.Params)
		if perr != nil {
			rpcErr = perr
			break
		}
		result = (*hexutil.Big)(s.exec.Balances(addr).ToBig())

	default:
		rpcErr = &rpcError{-32601, "method not found: " + req.Method}
	}

	resp := jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		Error:   rpcErr,
		ID:      req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
