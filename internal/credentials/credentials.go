// Package credentials checks toolset master keys and mints the
// short-lived credentials a runtime uses once admitted: an opaque runtime
// token and a NATS user JWT scoped to one toolset's subjects.
package credentials

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/repository"
	"github.com/nats-io/nkeys"
	"golang.org/x/crypto/bcrypt"
)

// RuntimeTokenPrefix marks runtime tokens.
const RuntimeTokenPrefix = "RTK_"

// Default lifetimes.
const (
	DefaultAccessTokenTTL = time.Hour
	DefaultNatsJWTTTL     = time.Hour
)

const runtimeTokenBytes = 32

// KeyVerifier reports whether plain matches a stored master key hash.
type KeyVerifier func(hash, plain string) bool

// VerifyKey is the default KeyVerifier.
func VerifyKey(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashKey returns the stored form of a master key.
func HashKey(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(h), nil
}

// HashToken returns the stored form of a runtime token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Config configures a Service. SigningSeed is an nkeys account seed; when
// empty the service still validates keys and issues runtime tokens but
// GenerateNatsJWT fails.
type Config struct {
	SigningSeed    string
	AccessTokenTTL time.Duration
	NatsJWTTTL     time.Duration
}

// Service validates master keys and issues runtime credentials.
type Service struct {
	toolsets repository.ToolsetRepository
	tokens   repository.TokenRepository
	signer   nkeys.KeyPair
	cfg      Config
	verify   KeyVerifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithKeyVerifier replaces bcrypt verification of master keys.
func WithKeyVerifier(v KeyVerifier) Option {
	return func(s *Service) {
		s.verify = v
	}
}

// New creates a Service. A configured seed must be a valid account seed.
func New(toolsets repository.ToolsetRepository, tokens repository.TokenRepository, cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}

	if cfg.NatsJWTTTL <= 0 {
		cfg.NatsJWTTTL = DefaultNatsJWTTTL
	}

	s := &Service{
		toolsets: toolsets,
		tokens:   tokens,
		cfg:      cfg,
		verify:   VerifyKey,
		logger:   logging.Component(logger, "credentials"),
		now:      time.Now,
	}

	if cfg.SigningSeed != "" {
		kp, err := nkeys.FromSeed([]byte(cfg.SigningSeed))
		if err != nil {
			return nil, fmt.Errorf("parsing signing seed: %w", err)
		}

		pub, err := kp.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("reading signing key: %w", err)
		}

		if !nkeys.IsValidPublicAccountKey(pub) {
			return nil, fmt.Errorf("signing seed is not an account seed (public key %s)", pub)
		}

		s.signer = kp
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// ValidateMasterKey returns the toolset named toolsetName when plainKey
// matches one of its active master keys, or nil. Revoked, expired and
// foreign-toolset keys are skipped before any hash comparison.
func (s *Service) ValidateMasterKey(ctx context.Context, plainKey, toolsetName string) *models.Toolset {
	if plainKey == "" || toolsetName == "" {
		return nil
	}

	toolset, err := s.toolsets.FindByName(ctx, toolsetName)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("looking up toolset",
				slog.String("toolset", toolsetName),
				slog.String("error", err.Error()),
			)
		}

		return nil
	}

	keys, err := s.tokens.FindByWorkspace(ctx, toolset.WorkspaceID, models.TokenMasterKey)
	if err != nil {
		s.logger.Error("listing master keys",
			slog.String("workspace_id", toolset.WorkspaceID),
			slog.String("error", err.Error()),
		)

		return nil
	}

	now := s.now()

	for _, key := range keys {
		if !key.Active(now) || key.ToolsetID != toolset.ID {
			continue
		}

		if s.verify(key.Key, plainKey) {
			s.logger.Debug("master key accepted",
				slog.String("toolset_id", toolset.ID),
				slog.String("token_id", key.ID),
			)

			return toolset
		}
	}

	return nil
}

// GenerateAccessToken mints a runtime token for runtimeID on toolsetID and
// returns the secret. Only its hash is stored. The token's workspace stays
// models.PendingWorkspace until the runtime is attached.
func (s *Service) GenerateAccessToken(ctx context.Context, runtimeID, toolsetID string) (string, error) {
	raw := make([]byte, runtimeTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating runtime token: %w", err)
	}

	secret := RuntimeTokenPrefix + hex.EncodeToString(raw)
	now := s.now()
	expires := now.Add(s.cfg.AccessTokenTTL)

	tok := &models.Token{
		Key:         HashToken(secret),
		Type:        models.TokenRuntimeKey,
		WorkspaceID: models.PendingWorkspace,
		ToolsetID:   toolsetID,
		RuntimeID:   runtimeID,
		CreatedAt:   now,
		ExpiresAt:   &expires,
	}

	if err := s.tokens.Create(ctx, tok); err != nil {
		s.logger.Error("storing runtime token",
			slog.String("runtime_id", runtimeID),
			slog.String("toolset_id", toolsetID),
			slog.String("error", err.Error()),
		)

		return "", apperrors.ErrAccessTokenFailed
	}

	s.logger.Info("runtime token issued",
		slog.String("token_id", tok.ID),
		slog.String("runtime_id", runtimeID),
		slog.String("toolset_id", toolsetID),
	)

	return secret, nil
}

// IsTokenValid reports whether the token with tokenID exists and is
// active. Lookup errors count as invalid.
func (s *Service) IsTokenValid(ctx context.Context, tokenID string) bool {
	tok, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("checking token",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}

		return false
	}

	return tok.Active(s.now())
}
