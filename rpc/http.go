package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"localsolana/core/events"
	"localsolana/native/escrow"
	"localsolana/state"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000

	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
	codeEscrowDeadline      = -32026
	codeEscrowFunds         = -32027
	codeEscrowReinit        = -32028
)

// Server exposes the escrow ledger operations over JSON-RPC 2.0. Operations
// against the same record are serialized by the server's mutex; the state
// manager's transaction keeps each operation all-or-nothing.
type Server struct {
	engine *escrow.Engine
	state  *state.Manager
	events *events.Buffer
	log    *slog.Logger

	mu        sync.Mutex
	authToken string
}

// NewServer wires an engine and state manager into an RPC server. A bearer
// token for mutating methods is read from LOCALSOLANA_RPC_TOKEN when set.
// The engine's emitter is wrapped in a buffer so subscribers only observe
// events from operations that committed.
func NewServer(engine *escrow.Engine, mgr *state.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	buffer := events.NewBuffer(engine.Emitter())
	engine.SetEmitter(buffer)
	return &Server{
		engine:    engine,
		state:     mgr,
		events:    buffer,
		log:       log,
		authToken: strings.TrimSpace(os.Getenv("LOCALSOLANA_RPC_TOKEN")),
	}
}

// Router builds the HTTP surface: JSON-RPC at the root, health and metrics
// alongside.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}
	handler(w, r, &req)
}

type rpcHandler func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"escrow_create":                  s.handleCreate,
		"escrow_fund":                    s.handleFund,
		"escrow_markFiatPaid":            s.handleMarkFiatPaid,
		"escrow_updateSequentialAddress": s.handleUpdateSequentialAddress,
		"escrow_release":                 s.handleRelease,
		"escrow_cancel":                  s.handleCancel,
		"escrow_autoCancel":              s.handleAutoCancel,
		"escrow_initBuyerBondAccount":    s.handleInitBuyerBond,
		"escrow_initSellerBondAccount":   s.handleInitSellerBond,
		"escrow_openDispute":             s.handleOpenDispute,
		"escrow_respondToDispute":        s.handleRespondToDispute,
		"escrow_defaultJudgment":         s.handleDefaultJudgment,
		"escrow_resolveDispute":          s.handleResolveDispute,
		"escrow_get":                     s.handleGet,
		"escrow_derivedAddresses":        s.handleDerivedAddresses,
		"escrow_balance":                 s.handleBalance,
	}
}
