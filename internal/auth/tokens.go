package auth

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "skilder"
)

// minSecretLength is the shortest HMAC secret accepted.
const minSecretLength = 32

// TokenKind tells access and refresh tokens apart. A token of one kind
// never verifies as the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Identity is the part of the claims that describes the user. A refresh
// carries it over to the new access token unchanged.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// Claims is the JWT payload of session tokens.
type Claims struct {
	Identity
	Kind TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer. A nil now uses
// time.Now.
func NewTokenIssuer(cfg IssuerConfig, now func() time.Time) (*TokenIssuer, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret: %w", apperrors.ErrSecretTooShort)
	}

	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}

	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	if now == nil {
		now = time.Now
	}

	return &TokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

// Issue signs a token of the given kind for id and returns it with its
// expiry.
func (t *TokenIssuer) Issue(id Identity, kind TokenKind) (string, time.Time, error) {
	ttl := t.accessTTL
	if kind == KindRefresh {
		ttl = t.refreshTTL
	}

	now := t.now()
	exp := now.Add(ttl)

	claims := Claims{
		Identity: id,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", kind, err)
	}

	return signed, exp, nil
}

// Verify checks the signature, issuer, expiry and kind of token.
func (t *TokenIssuer) Verify(token string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}

	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %q token, want %q", jwt.ErrTokenInvalidClaims, claims.Kind, kind)
	}

	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}

// RefreshTTL is the lifetime of refresh tokens and their sessions.
func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}
