package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/MrEthical07/tokenauth/permission"
)

const maxBodyBytes = 1 << 20

// Engine is the subset of *tokenauth.Engine served over HTTP.
type Engine interface {
	middleware.Authenticator
	Login(ctx context.Context, email, password string) (*tokenauth.LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, subjectID string) error
	ListSessions(ctx context.Context, subjectID string) ([]tokenauth.SessionInfo, error)
}

// Option customises a [Handler].
type Option func(*Handler)

// WithTransport sets the header names, usually engine.Config().Transport.
func WithTransport(cfg tokenauth.TransportConfig) Option {
	return func(h *Handler) {
		h.transport = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClientIP replaces RemoteAddr based client IP resolution.
func WithClientIP(fn func(*http.Request) string) Option {
	return func(h *Handler) {
		if fn != nil {
			h.clientIP = fn
		}
	}
}

// Handler serves the /auth routes.
type Handler struct {
	engine    Engine
	transport tokenauth.TransportConfig
	logger    *slog.Logger
	clientIP  func(*http.Request) string
	mux       *http.ServeMux
}

// New builds the route table. Authenticated routes go through
// middleware.Authenticate with the same transport settings.
func New(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:    engine,
		transport: tokenauth.DefaultConfig().Transport,
		logger:    slog.Default(),
		clientIP:  middleware.RemoteIP,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	authn := middleware.Authenticate(engine,
		middleware.WithTransport(h.transport),
		middleware.WithClientIP(h.clientIP),
	)
	admin := func(next http.Handler) http.Handler {
		return authn(middleware.RequireRole(permission.RoleAdmin)(next))
	}

	h.mux.HandleFunc("POST /auth/login", h.login)
	h.mux.HandleFunc("POST /auth/refresh", h.refresh)
	h.mux.HandleFunc("POST /auth/logout", h.logout)
	h.mux.Handle("POST /auth/logout-all", authn(http.HandlerFunc(h.logoutAll)))
	h.mux.Handle("GET /auth/sessions", authn(http.HandlerFunc(h.sessions)))
	h.mux.Handle("GET /auth/me", authn(http.HandlerFunc(h.me)))
	h.mux.Handle("GET /auth/admin/ping", admin(http.HandlerFunc(h.adminPing)))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string                   `json:"accessToken"`
	RefreshToken string                   `json:"refreshToken"`
	User         tokenauth.SubjectSummary `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := middleware.RequestContext(r, h.clientIP)
	res, err := h.engine.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch kind := tokenauth.KindOf(err); kind {
		case tokenauth.KindNotFound, tokenauth.KindInvalidCredentials:
			// Unknown email and wrong password share one response.
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		default:
			h.writeEngineError(w, r, "login", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         res.Subject,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}
	if token == "" {
		middleware.WriteError(w, r, tokenauth.KindUnauthenticated)
		return
	}

	access, err := h.engine.Refresh(middleware.RequestContext(r, h.clientIP), token)
	if err != nil {
		h.writeEngineError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}
	if err := h.engine.Logout(middleware.RequestContext(r, h.clientIP), token); err != nil {
		h.writeEngineError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireIdentity writes 401 and returns false when the request carries no
// verified identity.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*tokenauth.Identity, bool) {
	id, ok := tokenauth.IdentityFromContext(r.Context())
	if !ok || id == nil {
		middleware.WriteError(w, r, tokenauth.KindUnauthenticated)
		return nil, false
	}
	return id, true
}

// logoutAll ignores any body; the subject comes from the verified identity.
func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.engine.LogoutAll(r.Context(), id.SubjectID); err != nil {
		h.writeEngineError(w, r, "logout-all", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	list, err := h.engine.ListSessions(r.Context(), id.SubjectID)
	if err != nil {
		h.writeEngineError(w, r, "sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:        id.SubjectID,
		Email:     id.Email,
		Role:      id.Role.String(),
		ExpiresAt: id.ExpiresAt,
	})
}

func (h *Handler) adminPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refreshToken reads the token from the JSON body, falling back to the
// refresh header. An empty body is allowed.
func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return "", false
		}
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(h.transport.RefreshHeader))
	}
	return token, true
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := tokenauth.KindOf(err)
	switch kind {
	case tokenauth.KindInternal:
		h.logger.Error("auth request failed", "op", op, "error", err)
	case tokenauth.KindUnavailable:
		h.logger.Warn("auth backend unavailable", "op", op, "error", err)
	}
	middleware.WriteError(w, r, kind)
}

type errorBody struct {
	Error string `json:"error"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody{Error: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
