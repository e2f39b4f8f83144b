package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/opynfinance/OpynV2/core"
	"github.com/opynfinance/OpynV2/observability"
)

const jsonRPCVersion = "2.0"

const maxRequestBytes = 1 << 20 // 1 MiB

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
)

// Server exposes the node over JSON-RPC 2.0. Mutating methods require the
// bearer token from OPYN_RPC_TOKEN; read methods are open.
type Server struct {
	node      *core.Node
	authToken string
	metrics   interface {
		Observe(module, method string, status int, duration time.Duration)
	}
}

func NewServer(node *core.Node) *Server {
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv("OPYN_RPC_TOKEN")),
		metrics:   observability.ModuleMetrics(),
	}
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

// rpcResult pairs a handler outcome with the HTTP status it maps to.
type rpcResult struct {
	status int
	result interface{}
	err    *RPCError
}

func resultOK(result interface{}) rpcResult {
	return rpcResult{status: http.StatusOK, result: result}
}

func resultError(status, code int, message string, data interface{}) rpcResult {
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	return rpcResult{status: status, err: errObj}
}

func methodNotFound(method string) rpcResult {
	return resultError(http.StatusNotFound, codeMethodNotFound, fmt.Sprintf("unknown method %s", method), nil)
}

func invalidParams(message string) rpcResult {
	return resultError(http.StatusBadRequest, codeInvalidParams, message, nil)
}

func serverError(err error) rpcResult {
	return resultError(http.StatusBadRequest, codeServerError, err.Error(), nil)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// ServeHTTP routes a JSON-RPC request to its module handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
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
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[req.Method] {
		if err := s.authorize(r); err != nil {
			writeError(w, http.StatusUnauthorized, req.ID, err.Code, err.Message, err.Data)
			s.observe(req.Method, http.StatusUnauthorized, time.Now())
			return
		}
	}

	started := time.Now()
	var out rpcResult
	switch {
	case strings.HasPrefix(req.Method, "margin_"):
		out = s.handleMargin(&req)
	case strings.HasPrefix(req.Method, "oracle_"):
		out = s.handleOracle(&req)
	default:
		out = methodNotFound(req.Method)
	}

	if out.err != nil {
		writeError(w, out.status, req.ID, out.err.Code, out.err.Message, out.err.Data)
	} else {
		writeResult(w, req.ID, out.result)
	}
	s.observe(req.Method, out.status, started)
}

func (s *Server) observe(method string, status int, started time.Time) {
	module := method
	if idx := strings.Index(method, "_"); idx > 0 {
		module = method[:idx]
	}
	if s.metrics != nil {
		s.metrics.Observe(module, method, status, time.Since(started))
	}
}

// authorize enforces the bearer token on mutating methods. A server started
// without a token refuses all mutations rather than running open.
func (s *Server) authorize(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "server has no RPC token configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	if strings.TrimSpace(strings.TrimPrefix(header, prefix)) != s.authToken {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

// mutatingMethods lists every method that writes state and therefore
// requires authorization.
var mutatingMethods = map[string]bool{
	"margin_registerOption":         true,
	"margin_registerAssetDecimals":  true,
	"margin_openVault":              true,
	"margin_mintShort":              true,
	"margin_burnShort":              true,
	"margin_depositLong":            true,
	"margin_withdrawLong":           true,
	"margin_depositCollateral":      true,
	"margin_withdrawCollateral":     true,
	"margin_syncVault":              true,
	"margin_settleVault":            true,
	"margin_liquidate":              true,
	"margin_setSpotShock":           true,
	"margin_setProductTimeToExpiry": true,
	"margin_setTimeToExpiryValue":   true,
	"margin_setCollateralDust":      true,
	"margin_setOracleDeviation":     true,
	"oracle_setLivePrice":           true,
	"oracle_submitExpiryPrice":      true,
	"oracle_disputeExpiryPrice":     true,
	"oracle_recordRound":            true,
}
