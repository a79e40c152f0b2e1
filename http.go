package flatbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type jsonResp struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Token      string            `json:"token,omitempty"`
	AcctNumber string            `json:"account_number,omitempty"`
	Balance    *decimal.Decimal  `json:"balance,omitempty"`
	NewBalance *decimal.Decimal  `json:"new_balance,omitempty"`
	Account    *AccountView      `json:"account,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

type ctxKey int

const usernameKey ctxKey = iota

// UsernameFrom returns the identity the auth middleware attached to ctx.
func UsernameFrom(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}

func NewHTTPHandler(svc Service, gate *TokenGate, node *snowflake.Node, log *zerolog.Logger) http.Handler {
	hndlr := &httpHandler{
		Svc:  svc,
		Gate: gate,
		Node: node,
		Log:  log,
	}
	mux := chi.NewMux()
	mux.Use(hndlr.accessLog)
	mux.Use(middleware.Recoverer)
	mux.NotFound(HTTPNotFound)

	mux.Post("/register", hndlr.Register)
	mux.Post("/login", hndlr.Login)
	mux.Group(func(r chi.Router) {
		r.Use(hndlr.authenticate)
		r.Get("/protected", hndlr.Protected)
		r.Route("/accounts", func(rr chi.Router) {
			rr.Post("/create", hndlr.CreateAccount)
			rr.Get("/my-account", hndlr.MyAccount)
			rr.Post("/deposit", hndlr.Deposit)
			rr.Post("/withdraw", hndlr.Withdraw)
			rr.Post("/transfer", hndlr.Transfer)
			rr.Post("/close", hndlr.Close)
			rr.Get("/statement", hndlr.Statement)
		})
	})

	return mux
}

type httpHandler struct {
	Svc  Service
	Gate *TokenGate
	Node *snowflake.Node
	Log  *zerolog.Logger
}

func (h *httpHandler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := h.Node.Generate().String()
		w.Header().Set("X-Request-ID", reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Log.Info().
			Str("request_id", reqID).
			Str("http_method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func (h *httpHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, jsonResp{Message: "Authorization header required"})
			return
		}
		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || token == "" {
			writeJSON(w, http.StatusUnauthorized, jsonResp{Message: "Bearer token required"})
			return
		}
		username, err := h.Gate.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, jsonResp{Message: "Invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// readJSON decodes the request body into v. An empty body leaves v as is.
func (h *httpHandler) readJSON(r *http.Request, method string, v any) error {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error reading HTTP request")
		return ErrInternalServer
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}
	if err = json.Unmarshal(buf, v); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error unmarshalling JSON")
		return ErrBadRequest{Fields: map[string]string{"request body": "Invalid JSON"}}
	}
	return nil
}

func (h *httpHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsReq
	if err := h.readJSON(r, "register", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	if err := h.Svc.Register(req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{Success: true, Message: "User registered successfully"})
}

func (h *httpHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsReq
	if err := h.readJSON(r, "login", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	username, err := h.Svc.Login(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	token, err := h.Gate.Issue(username)
	if err != nil {
		h.Log.Err(err).Str("method", "login").Msg("error issuing token")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{Success: true, Message: "Login successful", Token: token})
}

func (h *httpHandler) Protected(w http.ResponseWriter, r *http.Request) {
	username := UsernameFrom(r.Context())
	writeJSON(w, http.StatusOK, jsonResp{Success: true, Message: fmt.Sprintf("Hello, %s!", username)})
}

func (h *httpHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountReq
	if err := h.readJSON(r, "create_account", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Username = UsernameFrom(r.Context())
	acct, err := h.Svc.CreateAccount(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{
		Success:    true,
		Message:    "Account created successfully",
		AcctNumber: acct.AcctNumber,
		Balance:    &acct.Balance,
	})
}

func (h *httpHandler) MyAccount(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Account(AccountReq{Username: UsernameFrom(r.Context())})
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{Success: true, Account: view})
}

func (h *httpHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req ChargeReq
	if err := h.readJSON(r, "deposit", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Username = UsernameFrom(r.Context())
	bal, err := h.Svc.Deposit(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{
		Success:    true,
		Message:    fmt.Sprintf("Deposited $%s", req.Amount.StringFixed(2)),
		NewBalance: bal,
	})
}

func (h *httpHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req ChargeReq
	if err := h.readJSON(r, "withdraw", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Username = UsernameFrom(r.Context())
	bal, err := h.Svc.Withdraw(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{
		Success:    true,
		Message:    fmt.Sprintf("Withdrew $%s", req.Amount.StringFixed(2)),
		NewBalance: bal,
	})
}

func (h *httpHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferReq
	if err := h.readJSON(r, "transfer", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Username = UsernameFrom(r.Context())
	bal, err := h.Svc.Transfer(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{
		Success:    true,
		Message:    fmt.Sprintf("Transferred $%s to account %s", req.Amount.StringFixed(2), req.ToAcctNumber),
		NewBalance: bal,
	})
}

func (h *httpHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.CloseAccount(AccountReq{Username: UsernameFrom(r.Context())}); err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResp{Success: true, Message: "Account closed successfully"})
}

func (h *httpHandler) Statement(w http.ResponseWriter, r *http.Request) {
	buf := &bytes.Buffer{}
	if err := h.Svc.Statement(buf, StatementReq{Username: UsernameFrom(r.Context())}); err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="statement.pdf"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error writing statement")
	}
}

func writeJSON(w http.ResponseWriter, status int, resp jsonResp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().
			Err(err).
			Msg("response encoding failed")
	}
}

// WriteHTTPError maps err to a status code and a JSON body. Errors outside
// the typed set are reported as a bare server error.
func WriteHTTPError(w http.ResponseWriter, err error) {
	var (
		errbr  ErrBadRequest
		errnf  ErrNotFound
		errcf  ErrConflict
		errun  ErrUnauthorized
		status int
		resp   jsonResp
	)
	switch {
	case errors.As(err, &errbr):
		status = http.StatusBadRequest
		resp = jsonResp{Message: badRequestMessage(errbr), Fields: errbr.Fields}
	case errors.As(err, &errnf):
		status = http.StatusNotFound
		resp = jsonResp{Message: errnf.Error()}
	case errors.As(err, &errcf):
		status = http.StatusConflict
		resp = jsonResp{Message: errcf.Error()}
	case errors.As(err, &errun):
		status = http.StatusUnauthorized
		resp = jsonResp{Message: errun.Error()}
	case errors.Is(err, ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
		resp = jsonResp{Message: ErrServiceUnavailable.Error()}
	default:
		status = http.StatusInternalServerError
		resp = jsonResp{Message: "server error"}
	}
	writeJSON(w, status, resp)
}

func badRequestMessage(e ErrBadRequest) string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	if len(e.Fields) == 1 {
		for _, reason := range e.Fields {
			return reason
		}
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
