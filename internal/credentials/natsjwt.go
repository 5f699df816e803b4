package credentials

import (
	"fmt"
	"log/slog"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nkeys"
)

// SigningMethodNkey signs tokens with an nkeys key pair, the algorithm
// NATS servers expect on user JWTs.
var SigningMethodNkey = &signingMethodNkey{}

type signingMethodNkey struct{}

func init() {
	jwt.RegisterSigningMethod(SigningMethodNkey.Alg(), func() jwt.SigningMethod {
		return SigningMethodNkey
	})
}

func (*signingMethodNkey) Alg() string { return "ed25519-nkey" }

// Sign expects an nkeys.KeyPair holding a seed.
func (*signingMethodNkey) Sign(signingString string, key any) ([]byte, error) {
	kp, ok := key.(nkeys.KeyPair)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	return kp.Sign([]byte(signingString))
}

// Verify accepts any nkeys.KeyPair, including one built from a public key.
func (*signingMethodNkey) Verify(signingString string, sig []byte, key any) error {
	kp, ok := key.(nkeys.KeyPair)
	if !ok {
		return jwt.ErrInvalidKeyType
	}

	if err := kp.Verify([]byte(signingString), sig); err != nil {
		return jwt.ErrSignatureInvalid
	}

	return nil
}

// SubjectAllow lists permitted subjects.
type SubjectAllow struct {
	Allow []string `json:"allow"`
}

// NatsPermissions is the nats section of a user token.
type NatsPermissions struct {
	Type string       `json:"type"`
	Pub  SubjectAllow `json:"pub"`
	Sub  SubjectAllow `json:"sub"`
}

// NatsClaims is the payload of a toolset-scoped NATS user token. The
// registered claims carry jti, iss (the account public key), sub (the
// runtime id), iat and exp.
type NatsClaims struct {
	ToolsetID   string          `json:"toolsetId"`
	WorkspaceID string          `json:"workspaceId"`
	Nats        NatsPermissions `json:"nats"`
	jwt.RegisteredClaims
}

// ToolsetSubjects is the subject namespace a toolset token may use.
func ToolsetSubjects(toolsetID string) string {
	return "toolset." + toolsetID + ".*"
}

// GenerateNatsJWT signs a user token that may publish and subscribe on
// the subjects of toolsetID only. It fails with ErrSigningSeedMissing when
// no account seed is configured.
func (s *Service) GenerateNatsJWT(toolsetID, runtimeID, workspaceID string) (string, error) {
	if s.signer == nil {
		return "", apperrors.ErrSigningSeedMissing
	}

	issuer, err := s.signer.PublicKey()
	if err != nil {
		return "", fmt.Errorf("reading signing key: %w", err)
	}

	now := s.now()
	subjects := []string{ToolsetSubjects(toolsetID)}

	claims := NatsClaims{
		ToolsetID:   toolsetID,
		WorkspaceID: workspaceID,
		Nats: NatsPermissions{
			Type: "user",
			Pub:  SubjectAllow{Allow: subjects},
			Sub:  SubjectAllow{Allow: subjects},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   runtimeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.NatsJWTTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(SigningMethodNkey, claims).SignedString(s.signer)
	if err != nil {
		return "", fmt.Errorf("signing nats jwt: %w", err)
	}

	s.logger.Debug("nats jwt issued",
		slog.String("jti", claims.ID),
		slog.String("toolset_id", toolsetID),
		slog.String("runtime_id", runtimeID),
	)

	return signed, nil
}
