package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/alpinai/skilder/internal/logging"
)

type contextKey int

const (
	ctxClaims contextKey = iota
	ctxRemoteIP
)

// AccessVerifier validates access tokens. *Service satisfies it.
type AccessVerifier interface {
	VerifyAccessToken(token string) *Claims
}

// RequestClaims returns the verified claims from the context, or nil.
func RequestClaims(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxClaims).(*Claims)
	return v
}

// RequestUserID returns the authenticated user ID from the context, or "".
func RequestUserID(ctx context.Context) string {
	if c := RequestClaims(ctx); c != nil {
		return c.UserID
	}

	return ""
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// RemoteIP strips the port from r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// Middleware returns HTTP middleware that requires a valid access token
// in the Authorization header. Refresh tokens are rejected.
func Middleware(verifier AccessVerifier, logger *slog.Logger, realm string) func(http.Handler) http.Handler {
	logger = logging.Component(logger, "auth")

	// RFC 6750 Section 3.1: no error attribute when no token was provided.
	wwwAuthNoToken := fmt.Sprintf(`Bearer realm="%s"`, realm)
	// error="invalid_token" signals the client should attempt a refresh.
	wwwAuthInvalid := fmt.Sprintf(`Bearer realm="%s", error="invalid_token"`, realm)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			ip := RemoteIP(r)

			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Debug("middleware: no bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", wwwAuthNoToken)
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			claims := verifier.VerifyAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
			if claims == nil {
				logger.Debug("middleware: invalid bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", wwwAuthInvalid)
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			logger.Debug("middleware: authenticated",
				slog.String("user_id", claims.UserID),
				slog.String("ip", ip),
			)

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxClaims, claims)
			ctx = context.WithValue(ctx, ctxRemoteIP, ip)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
