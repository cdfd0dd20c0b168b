package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/andreafspeziale/splitter-contract/internal/chain"
	"github.com/andreafspeziale/splitter-contract/internal/protocol"
	"github.com/andreafspeziale/splitter-contract/internal/splitter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

// Server exposes an Executor over HTTP and JSON-RPC
type Server struct {
	exec      *Executor
	router    *mux.Router
	srv       *http.Server
	srvMu     sync.Mutex
	closeOnce sync.Once
}

func NewServer(exec *Executor) *Server {
	s := &Server{
		exec:   exec,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// NewServerForTest creates a server over fresh in-memory state with a
// splitter deployed by owner
func NewServerForTest(owner common.Address) (*Server, error) {
	st, err := chain.NewMemoryState()
	if err != nil {
		return nil, err
	}
	exec, err := NewExecutor(st, ExecutorConfig{ChainID: DefaultChainID, Deployer: owner})
	if err != nil {
		return nil, err
	}
	return NewServer(exec), nil
}

// Router returns the HTTP router for testing
func (s *Server) Router() *mux.Router {
	return s.router
}

// Executor returns the executor behind the server
func (s *Server) Executor() *Executor {
	return s.exec
}

func (s *Server) setupRoutes() {
	// Native balances
	s.router.HandleFunc("/balance/{address}", s.handleGetBalance).Methods("GET")
	s.router.HandleFunc("/faucet", s.handleFaucet).Methods("POST")

	// Splitter reads
	s.router.HandleFunc("/splitter/owner", s.handleOwner).Methods("GET")
	s.router.HandleFunc("/splitter/paused", s.handlePaused).Methods("GET")
	s.router.HandleFunc("/splitter/balances/{address}", s.handleBalances).Methods("GET")

	// Splitter transactions
	s.router.HandleFunc("/splitter/split", s.handleSplit).Methods("POST")
	s.router.HandleFunc("/splitter/withdraw", s.handleWithdraw).Methods("POST")
	s.router.HandleFunc("/splitter/pause", s.handlePause).Methods("POST")
	s.router.HandleFunc("/splitter/unpause", s.handleUnpause).Methods("POST")
	s.router.HandleFunc("/splitter/transfer-ownership", s.handleTransferOwnership).Methods("POST")

	s.router.HandleFunc("/receipt/{hash}", s.handleReceipt).Methods("GET")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// JSON-RPC (for cast compatibility)
	s.router.HandleFunc("/", s.handleJSONRPC).Methods("POST")
}

// Start serves until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	log.Printf("Splitter node starting on %s (contract %s)", addr, s.exec.Contract().Hex())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.srvMu.Lock()
		srv := s.srv
		s.srvMu.Unlock()
		if srv != nil {
			err = srv.Shutdown(ctx)
		}
	})
	return err
}

// statusFor maps a transaction error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, splitter.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, splitter.ErrOperationPaused), errors.Is(err, splitter.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, splitter.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, chain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrPersistLedger):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeTx(w http.ResponseWriter, txHash common.Hash, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), protocol.TxResponse{TxHash: txHash, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, protocol.TxResponse{Success: true, TxHash: txHash})
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		http.Error(w, "invalid address: "+raw, http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// Handler implementations

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewBalanceResponse(addr, s.exec.NativeBalance(addr)))
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req protocol.FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := protocol.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.exec.Faucet(req.Address, amount); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.OwnerResponse{Owner: s.exec.Owner()})
}

func (s *Server) handlePaused(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.PausedResponse{Paused: s.exec.Paused()})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewBalanceResponse(addr, s.exec.Balances(addr)))
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req protocol.SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := protocol.ParseAmount(req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txHash, err := s.exec.Split(r.Context(), req.From, req.First, req.Second, value)
	writeTx(w, txHash, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req protocol.CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txHash, amount, err := s.exec.Withdraw(r.Context(), req.From)
	if err != nil {
		writeTx(w, txHash, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.TxResponse{Success: true, TxHash: txHash, Amount: amount.Dec()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req protocol.CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txHash, err := s.exec.Pause(r.Context(), req.From)
	writeTx(w, txHash, err)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	var req protocol.CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txHash, err := s.exec.Unpause(r.Context(), req.From)
	writeTx(w, txHash, err)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txHash, err := s.exec.TransferOwnership(r.Context(), req.From, req.NewOwner)
	writeTx(w, txHash, err)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	hash := common.HexToHash(mux.Vars(r)["hash"])
	receipt := s.exec.Receipt(hash)
	if receipt == nil {
		http.Error(w, "receipt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain_id":     s.exec.ChainID(),
		"contract":     s.exec.Contract().Hex(),
		"deployer":     s.exec.Deployer().Hex(),
		"owner":        s.exec.Owner().Hex(),
		"paused":       s.exec.Paused(),
		"block_number": s.exec.BlockNumber(),
		"state_root":   s.exec.StateRoot().Hex(),
		"outstanding":  s.exec.Outstanding().Dec(),
		"in_flight":    s.exec.InFlight().Dec(),
		"custody":      s.exec.CustodyBalance().Dec(),
	})
}
