// Package oauth seals the state parameter of OAuth authorization flows.
// A state is an encrypted, self-describing payload: nothing is stored
// when it is issued. On validation its nonce is claimed in the shared
// cache so each state is accepted at most once across all instances.
package oauth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/metrics"
	"github.com/alpinai/skilder/internal/models"
	"golang.org/x/crypto/hkdf"
)

// StateLifetime is how long a state stays valid after it is generated.
// The nonce bucket TTL must be at least this long.
const StateLifetime = 10 * time.Minute

const (
	minSecretLength = 32
	keyInfo         = "skilder/oauth-state/aes-256-gcm"
	nonceBytes      = 16
)

// Nonces is the part of the cache used for replay detection.
type Nonces interface {
	Get(ctx context.Context, bucket, key string) (*cache.RawEntry, error)
	Claim(ctx context.Context, bucket, key string, value []byte) (bool, error)
}

// Service generates and validates state tokens.
type Service struct {
	aead    cipher.AEAD
	nonces  Nonces
	bucket  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for createdAt and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithBucket overrides the nonce bucket.
func WithBucket(name string) Option {
	return func(s *Service) {
		s.bucket = name
	}
}

// WithMetrics records validation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New derives the state key from secret and returns a Service.
func New(secret string, nonces Nonces, logger *slog.Logger, opts ...Option) (*Service, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("oauth state secret: %w", apperrors.ErrSecretTooShort)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving state key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	s := &Service{
		aead:   aead,
		nonces: nonces,
		bucket: cache.BucketOAuthNonce,
		logger: logging.Component(logger, "oauth"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// GenerateState returns an opaque URL-safe token carrying the request
// details, a fresh nonce and the current time.
func (s *Service) GenerateState(userID, workspaceID, provider, redirectURI string, scopes []string) (string, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	if scopes == nil {
		scopes = []string{}
	}

	payload := models.OAuthStatePayload{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Provider:    provider,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		Nonce:       hex.EncodeToString(nonce),
		CreatedAt:   s.now().UnixMilli(),
	}

	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}

	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	sealed := s.aead.Seal(iv, iv, plain, nil)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// ValidateState returns the payload of state, or nil when it is
// malformed, tampered with, older than StateLifetime or already used.
// A state is accepted at most once.
func (s *Service) ValidateState(ctx context.Context, state string) *models.OAuthStatePayload {
	payload, err := s.open(state)
	if err != nil {
		s.reject("malformed", err)
		return nil
	}

	age := s.now().Sub(time.UnixMilli(payload.CreatedAt))
	if age > StateLifetime {
		s.reject("expired", fmt.Errorf("state is %s old", age.Round(time.Millisecond)))
		return nil
	}

	entry, err := s.nonces.Get(ctx, s.bucket, payload.Nonce)
	if err != nil {
		s.reject("error", fmt.Errorf("checking nonce: %w", err))
		return nil
	}

	if entry != nil {
		s.reject("replay", fmt.Errorf("nonce %s already used", payload.Nonce))
		return nil
	}

	claimed, err := s.nonces.Claim(ctx, s.bucket, payload.Nonce, []byte{'1'})
	if err != nil {
		s.reject("error", fmt.Errorf("claiming nonce: %w", err))
		return nil
	}

	if !claimed {
		s.reject("replay", fmt.Errorf("nonce %s claimed concurrently", payload.Nonce))
		return nil
	}

	s.metrics.OAuthState("valid")

	return payload
}

func (s *Service) open(state string) (*models.OAuthStatePayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}

	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("state too short: %d bytes", len(raw))
	}

	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting state: %w", err)
	}

	var payload models.OAuthStatePayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}

	if payload.Nonce == "" {
		return nil, errors.New("state has no nonce")
	}

	return &payload, nil
}

func (s *Service) reject(outcome string, err error) {
	s.logger.Warn("oauth state rejected",
		slog.String("outcome", outcome),
		slog.String("error", err.Error()),
	)
	s.metrics.OAuthState(outcome)
}
