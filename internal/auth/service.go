// Package auth implements dashboard sessions: password login with account
// lockout, signed access and refresh tokens, refresh-token sessions, and
// the HTTP middleware that guards bearer-authenticated routes.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/metrics"
	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// Lockout policy.
const (
	MaxFailedLogins = 5
	BaseLockout     = 15 * time.Minute
	MaxLockout      = 24 * time.Hour
)

// PasswordVerifier reports whether password matches the stored hash.
type PasswordVerifier func(hash, password string) bool

// HashPassword returns the bcrypt hash of the NFKC form of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(norm.NFKC.String(password)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(h), nil
}

// VerifyPassword is the default PasswordVerifier.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(norm.NFKC.String(password))) == nil
}

// HashToken returns the form a refresh token is stored under.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LoginRequest carries credentials plus client details recorded on the
// session.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

// LoginResult is the outcome of Login. Error is set only when Success is
// false.
type LoginResult struct {
	Success bool              `json:"success"`
	User    *models.User      `json:"user,omitempty"`
	Tokens  *models.TokenPair `json:"tokens,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// RefreshRequest asks for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceInfo   string `json:"deviceInfo,omitempty"`
	IPAddress    string `json:"-"`
}

// RefreshResult is the outcome of RefreshToken.
type RefreshResult struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken,omitempty"`
	Error       string `json:"error,omitempty"`
}

// LogoutResult is the outcome of Logout.
type LogoutResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Service authenticates dashboard users.
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	issuer   *TokenIssuer
	verify   PasswordVerifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for lockout and session
// bookkeeping. Token timestamps follow the issuer's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPasswordVerifier replaces bcrypt verification.
func WithPasswordVerifier(v PasswordVerifier) Option {
	return func(s *Service) {
		s.verify = v
	}
}

// WithMetrics records login outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service.
func NewService(users repository.UserRepository, sessions repository.SessionRepository, issuer *TokenIssuer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		verify:   VerifyPassword,
		logger:   logging.Component(logger, "auth"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Login checks credentials and opens a session. An unknown email, a wrong
// password and a locked account all produce the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) LoginResult {
	email := strings.TrimSpace(norm.NFKC.String(req.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Login("invalid")
			return LoginResult{Error: apperrors.MsgInvalidCredentials}
		}

		return s.loginError("looking up user", err)
	}

	if s.IsAccountLocked(user) {
		s.logger.Warn("login refused, account locked",
			slog.String("user_id", user.ID),
			slog.String("ip", req.IPAddress),
		)
		s.metrics.Login("locked")

		return LoginResult{Error: apperrors.MsgInvalidCredentials}
	}

	if !s.verify(user.PasswordHash, req.Password) {
		s.recordFailure(ctx, user, req.IPAddress)
		s.metrics.Login("invalid")

		return LoginResult{Error: apperrors.MsgInvalidCredentials}
	}

	if user.Role == "" {
		user.Role = models.DefaultRole
	}

	id := Identity{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		WorkspaceID: user.WorkspaceID,
	}

	access, _, err := s.issuer.Issue(id, KindAccess)
	if err != nil {
		return s.loginError("issuing access token", err)
	}

	refresh, refreshExp, err := s.issuer.Issue(id, KindRefresh)
	if err != nil {
		return s.loginError("issuing refresh token", err)
	}

	now := s.now()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	if err := s.users.Update(ctx, user); err != nil {
		return s.loginError("updating last login", err)
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: HashToken(refresh),
		DeviceInfo:   req.DeviceInfo,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		CreatedAt:    now,
		LastUsedAt:   now,
		ExpiresAt:    refreshExp,
		IsActive:     true,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return s.loginError("creating session", err)
	}

	s.logger.Info("login succeeded",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
		slog.String("ip", req.IPAddress),
	)
	s.metrics.Login("success")

	return LoginResult{
		Success: true,
		User:    user,
		Tokens:  &models.TokenPair{AccessToken: access, RefreshToken: refresh},
	}
}

func (s *Service) loginError(step string, err error) LoginResult {
	s.logger.Error("login failed",
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
	s.metrics.Login("error")

	return LoginResult{Error: apperrors.MsgAuthenticationFailed}
}

// recordFailure bumps the failure counter and locks the account once it
// reaches MaxFailedLogins. Storage errors are logged; the caller answers
// with the credential error either way.
func (s *Service) recordFailure(ctx context.Context, user *models.User, ip string) {
	user.FailedLoginAttempts++

	if user.FailedLoginAttempts >= MaxFailedLogins {
		until := s.now().Add(LockoutDuration(user.FailedLoginAttempts))
		user.LockedUntil = &until

		s.logger.Warn("account locked",
			slog.String("user_id", user.ID),
			slog.Int("failed_attempts", user.FailedLoginAttempts),
			slog.Time("locked_until", until),
			slog.String("ip", ip),
		)
	}

	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("recording failed login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// LockoutDuration is how long an account stays locked after the given
// number of consecutive failures: BaseLockout at MaxFailedLogins, doubling
// per further failure, capped at MaxLockout.
func LockoutDuration(failures int) time.Duration {
	if failures < MaxFailedLogins {
		return 0
	}

	d := BaseLockout
	for i := MaxFailedLogins; i < failures && d < MaxLockout; i++ {
		d *= 2
	}

	return min(d, MaxLockout)
}

// IsAccountLocked reports whether user is locked at the current time.
func (s *Service) IsAccountLocked(user *models.User) bool {
	return user.LockedUntil != nil && s.now().Before(*user.LockedUntil)
}

// RefreshToken exchanges a refresh token for a new access token with the
// same identity claims.
func (s *Service) RefreshToken(ctx context.Context, req RefreshRequest) RefreshResult {
	claims, err := s.issuer.Verify(req.RefreshToken, KindRefresh)
	if err != nil {
		s.logger.Debug("refresh token rejected", slog.String("error", err.Error()))
		return RefreshResult{Error: apperrors.MsgInvalidRefreshToken}
	}

	session, err := s.sessions.FindByRefreshToken(ctx, HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RefreshResult{Error: apperrors.MsgSessionNotFound}
		}

		return s.refreshError("looking up session", err)
	}

	now := s.now()
	if !session.Usable(now) || session.UserID != claims.UserID {
		return RefreshResult{Error: apperrors.MsgSessionNotFound}
	}

	access, _, err := s.issuer.Issue(claims.Identity, KindAccess)
	if err != nil {
		return s.refreshError("issuing access token", err)
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		return s.refreshError("touching session", err)
	}

	return RefreshResult{Success: true, AccessToken: access}
}

func (s *Service) refreshError(step string, err error) RefreshResult {
	s.logger.Error("token refresh failed",
		slog.String("step", step),
		slog.String("error", err.Error()),
	)

	return RefreshResult{Error: apperrors.MsgRefreshFailed}
}

// Logout deactivates the session behind refreshToken. Unknown tokens and
// sessions that are already inactive succeed.
func (s *Service) Logout(ctx context.Context, refreshToken string) LogoutResult {
	session, err := s.sessions.FindByRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LogoutResult{Success: true}
		}

		s.logger.Error("logout failed", slog.String("error", err.Error()))

		return LogoutResult{Error: apperrors.MsgLogoutFailed}
	}

	if !session.IsActive {
		return LogoutResult{Success: true}
	}

	if err := s.sessions.Deactivate(ctx, session.ID); err != nil {
		s.logger.Error("logout failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)

		return LogoutResult{Error: apperrors.MsgLogoutFailed}
	}

	s.logger.Info("logged out", slog.String("session_id", session.ID))

	return LogoutResult{Success: true}
}

// VerifyAccessToken returns the claims of a valid access token, or nil.
func (s *Service) VerifyAccessToken(token string) *Claims {
	claims, err := s.issuer.Verify(token, KindAccess)
	if err != nil {
		return nil
	}

	return claims
}

// VerifyRefreshToken returns the claims of a valid refresh token, or nil.
func (s *Service) VerifyRefreshToken(token string) *Claims {
	claims, err := s.issuer.Verify(token, KindRefresh)
	if err != nil {
		return nil
	}

	return claims
}
