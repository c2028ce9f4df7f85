// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package httpapi exposes the authentication flows over HTTP.
//
// Bodies are JSON. Flows that issue a refresh token take a "cookie" flag
// (default true): with cookie delivery the token travels only in an
// http-only cookie, otherwise it is returned in the body. Provider
// callbacks never answer with an error body; they redirect.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/oauthflow"
	"github.com/authgate/authgate/internal/observability"
)

// AuthService is the set of flows the handler serves.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	RegisterByName(ctx context.Context, in auth.RegisterByNameInput) (*auth.Session, error)
	Activate(ctx context.Context, ticket string) (*auth.Account, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	LoginAnonymous(ctx context.Context, delivery auth.DeliveryMode) (*auth.Session, error)
	Refresh(ctx context.Context, presented string, delivery auth.DeliveryMode) (*auth.Session, error)
	Logout(ctx context.Context, presented string) error
	ProviderCallback(ctx context.Context, in auth.ProviderCallbackInput) auth.ProviderCallbackResult
	RefreshTTL() time.Duration
}

// ProviderFlow runs the authorization-code exchange with external providers.
type ProviderFlow interface {
	AuthCodeURL(name, state string) (string, error)
	Exchange(ctx context.Context, name, code string) (auth.RawProfile, auth.ProviderTokens, error)
}

// Config holds the transport settings of the handler.
type Config struct {
	Cookies                 CookieConfig
	StateTTL                time.Duration // lifetime of the provider state cookie
	ActivateSuccessRedirect string        // JSON response when empty
	ActivateFailureRedirect string        // JSON error when empty
	ProviderFailureRedirect string
}

// Dependencies are the collaborators a Handler is built from.
type Dependencies struct {
	Service   AuthService
	Providers ProviderFlow          // nil disables the provider routes
	Metrics   *observability.Metrics // optional
	Logger    *slog.Logger
	NewState  func() (string, error) // defaults to oauthflow.NewState
}

// Handler routes authentication requests.
type Handler struct {
	svc       AuthService
	providers ProviderFlow
	metrics   *observability.Metrics
	logger    *slog.Logger
	newState  func() (string, error)
	cookies   cookieJar
	cfg       Config
	mux       *http.ServeMux
}

// New creates a Handler.
func New(cfg Config, deps Dependencies) (*Handler, error) {
	if deps.Service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewState == nil {
		deps.NewState = oauthflow.NewState
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	h := &Handler{
		svc:       deps.Service,
		providers: deps.Providers,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		newState:  deps.NewState,
		cookies:   cookieJar{cfg: cfg.Cookies},
		cfg:       cfg,
		mux:       http.NewServeMux(),
	}

	h.handle("POST /auth/register", h.handleRegister)
	h.handle("POST /auth/register/name", h.handleRegisterByName)
	h.handle("GET /auth/activate", h.handleActivate)
	h.handle("POST /auth/login", h.handleLogin)
	h.handle("POST /auth/token/refresh", h.handleRefresh)
	h.handle("POST /auth/logout", h.handleLogout)
	if h.providers != nil {
		h.handle("GET /auth/providers/{name}", h.handleProviderStart)
		h.handle("GET /auth/providers/{name}/callback", h.handleProviderCallback)
		h.handle("POST /auth/providers/{name}/callback", h.handleProviderCallback)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, h.instrument(pattern, fn))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request counts and latency under the route pattern.
func (h *Handler) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if h.metrics != nil {
			h.metrics.ObserveRequest(route, rec.status, time.Since(start))
		}
	})
}
