package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixcashier/audit"
	"pixcashier/native/cashback"
	"pixcashier/native/cashier"
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
)

const (
	codeCashierInvalidParams = -32021
	codeCashierNotFound      = -32022
	codeCashierForbidden     = -32023
	codeCashierConflict      = -32024
	codeCashierInternal      = -32025
)

const (
	scopeCashier  = "cashier"
	scopeCashback = "cashback"
)

// Server exposes the settlement engines over JSON-RPC. All mutating
// methods run under a single mutex so operations observe the ledger in a
// strict sequential order.
type Server struct {
	mu sync.Mutex

	cashier  *cashier.Engine
	cashback *cashback.Engine
	archive  *audit.Store
	auth     *Authenticator
	limits   *RateLimiter
	logger   *slog.Logger
}

func NewServer(cashierEngine *cashier.Engine, cashbackEngine *cashback.Engine, archive *audit.Store, auth *Authenticator, limits *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cashier:  cashierEngine,
		cashback: cashbackEngine,
		archive:  archive,
		auth:     auth,
		limits:   limits,
		logger:   logger,
	}
}

// Router mounts the RPC endpoint alongside health and metrics handlers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	rpcHandler := http.HandlerFunc(s.handle)
	if s.limits != nil {
		r.Method(http.MethodPost, "/", s.limits.Middleware(rpcHandler))
	} else {
		r.Post("/", s.handle)
	}
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "cashier_cashIn":
		s.authorized(w, r, req, scopeCashier, s.handleCashIn)
	case "cashier_requestCashOut":
		s.authorized(w, r, req, scopeCashier, s.handleRequestCashOut)
	case "cashier_confirmCashOut":
		s.authorized(w, r, req, scopeCashier, s.handleConfirmCashOut)
	case "cashier_confirmCashOuts":
		s.authorized(w, r, req, scopeCashier, s.handleConfirmCashOuts)
	case "cashier_reverseCashOut":
		s.authorized(w, r, req, scopeCashier, s.handleReverseCashOut)
	case "cashier_reverseCashOuts":
		s.authorized(w, r, req, scopeCashier, s.handleReverseCashOuts)
	case "cashier_getCashOut":
		s.handleGetCashOut(w, r, req)
	case "cashier_getCashOuts":
		s.handleGetCashOuts(w, r, req)
	case "cashier_cashOutBalanceOf":
		s.handleCashOutBalanceOf(w, r, req)
	case "cashier_pendingCashOutCounter":
		s.handlePendingCashOutCounter(w, r, req)
	case "cashier_processedCashOutCounter":
		s.handleProcessedCashOutCounter(w, r, req)
	case "cashier_getPendingCashOutTxIds":
		s.handleGetPendingCashOutTxIDs(w, r, req)
	case "cashier_underlyingToken":
		s.handleUnderlyingToken(w, r, req)
	case "cashback_getRate":
		s.handleCashbackGetRate(w, r, req)
	case "cashback_setRate":
		s.authorized(w, r, req, scopeCashback, s.handleCashbackSetRate)
	case "cashback_sendCashback":
		s.authorized(w, r, req, scopeCashback, s.handleSendCashback)
	case "audit_listEvents":
		s.handleAuditListEvents(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}

type rpcHandlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) authorized(w http.ResponseWriter, r *http.Request, req *RPCRequest, scope string, next rpcHandlerFunc) {
	if s.auth != nil {
		if authErr := s.auth.Verify(r, scope); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	next(w, r, req)
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseTxID(id string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return out, fmt.Errorf("txId required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("txId must be 32 bytes")
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func formatTxID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
