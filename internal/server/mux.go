// Package server provides HTTP server construction for skilder-identity.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alpinai/skilder/internal/auth"
	"github.com/alpinai/skilder/internal/credentials"
	"github.com/alpinai/skilder/internal/handshake"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/metrics"
	"github.com/alpinai/skilder/internal/oauth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server timeouts.
const (
	RequestTimeout    = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	IdleTimeout       = 2 * time.Minute
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Limiter gates credential attempts. Master key requests count by key
// prefix and IP; password logins count by IP only.
type Limiter interface {
	handshake.Limiter
	RecordFailedIPAttempt(ctx context.Context, ip string)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Auth        *auth.Service
	OAuth       *oauth.Service
	Credentials *credentials.Service
	// CredentialsTTL is reported as expiresIn; it defaults to
	// credentials.DefaultAccessTokenTTL.
	CredentialsTTL time.Duration
	// Limiter gates master key and login attempts. Nil disables rate
	// limiting.
	Limiter Limiter
	Metrics *metrics.Metrics
	Health  map[string]HealthCheck
	Logger  *slog.Logger
	Realm   string
}

// NewMux builds the router with session, OAuth state, runtime credential,
// health and metrics endpoints. /auth/me and state generation require a bearer access token.
func NewMux(cfg MuxConfig) http.Handler {
	h := &handlers{
		auth:           cfg.Auth,
		oauth:          cfg.OAuth,
		credentials:    cfg.Credentials,
		credentialsTTL: cfg.CredentialsTTL,
		limiter:        cfg.Limiter,
		health:         cfg.Health,
		logger:         logging.Component(cfg.Logger, "http"),
	}

	if h.credentialsTTL <= 0 {
		h.credentialsTTL = credentials.DefaultAccessTokenTTL
	}

	realm := cfg.Realm
	if realm == "" {
		realm = "skilder"
	}

	requireAuth := auth.Middleware(cfg.Auth, cfg.Logger, realm)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(RequestTimeout),
	)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.With(requireAuth).Get("/me", h.me)
	})

	r.Route("/oauth", func(r chi.Router) {
		r.With(requireAuth).Post("/{provider}/state", h.createState)
		r.Get("/callback", h.callback)
	})

	if cfg.Credentials != nil {
		r.Post("/toolsets/{name}/credentials", h.issueCredentials)
	}

	return r
}

// NewHTTPServer wraps handler with the server timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}
}
