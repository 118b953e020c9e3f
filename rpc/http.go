package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"launchpad/native/referral"
	"launchpad/native/sale"
	"launchpad/native/sale/settlement"
	"launchpad/observability"
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
	codeNotFound       = -32004
)

type Server struct {
	engine    *sale.Engine
	registry  *referral.Registry
	pipeline  *settlement.Pipeline
	authToken string
	log       *slog.Logger
}

func NewServer(engine *sale.Engine, registry *referral.Registry, pipeline *settlement.Pipeline, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    engine,
		registry:  registry,
		pipeline:  pipeline,
		authToken: strings.TrimSpace(authToken),
		log:       log.With("component", "rpc"),
	}
}

func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

// Handler exposes the dispatch entry point for embedding and tests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	method := s.dispatch(rec, r)
	observability.ObserveRPC(method, rec.status, started)
}

// dispatch decodes the envelope and routes to the method handler,
// returning the method name for metrics.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) string {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return "invalid"
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	req := &RPCRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return "invalid"
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return "invalid"
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return "invalid"
	}

	switch req.Method {
	// Privileged sale administration.
	case "sale_create":
		s.authed(w, r, req, s.handleSaleCreate)
	case "sale_remove":
		s.authed(w, r, req, s.handleSaleRemove)
	case "sale_updateDates":
		s.authed(w, r, req, s.handleSaleUpdateDates)
	case "sale_setDistributeToken":
		s.authed(w, r, req, s.handleSetDistributeToken)
	case "sale_setDistributeTokenDecimals":
		s.authed(w, r, req, s.handleSetDistributeTokenDecimals)
	case "sale_setClaimAvailable":
		s.authed(w, r, req, s.handleSetClaimAvailable)
	case "sale_updateReferralFees":
		s.authed(w, r, req, s.handleUpdateReferralFees)

	// Deposits and claims.
	case "sale_deposit":
		s.handleDeposit(w, r, req)
	case "sale_depositNative":
		s.handleDepositNative(w, r, req)
	case "sale_claimPurchase":
		s.handleClaim(w, r, req, settlement.ClaimPurchase)
	case "sale_claimRefund":
		s.handleClaim(w, r, req, settlement.ClaimRefund)
	case "sale_claimAffiliateReward":
		s.handleClaim(w, r, req, settlement.ClaimAffiliate)

	// Sale queries.
	case "sale_get":
		s.handleSaleGet(w, r, req)
	case "sale_list":
		s.handleSaleList(w, r, req)
	case "sale_accounts":
		s.handleSaleAccounts(w, r, req)
	case "sale_account":
		s.handleSaleAccount(w, r, req)
	case "sale_affiliateAccount":
		s.handleAffiliateAccount(w, r, req)
	case "sale_previewClaim":
		s.handlePreviewClaim(w, r, req)
	case "sale_referralFees":
		s.handleReferralFees(w, r, req)

	// Referral graph.
	case "referral_join":
		s.handleReferralJoin(w, r, req)
	case "referral_referrers":
		s.handleReferralReferrers(w, r, req)
	case "referral_affiliates":
		s.handleReferralAffiliates(w, r, req)

	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
	return req.Method
}

func (s *Server) authed(w http.ResponseWriter, r *http.Request, req *RPCRequest, handler func(http.ResponseWriter, *http.Request, *RPCRequest)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	handler(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "privileged methods disabled"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBig(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	return parsed, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// writeEngineError maps business errors onto JSON-RPC error envelopes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, sale.ErrSaleNotFound), errors.Is(err, referral.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, sale.ErrNotOwner):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, settlement.ErrOracleUnavailable), errors.Is(err, settlement.ErrLedgerUnavailable):
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	}
}
