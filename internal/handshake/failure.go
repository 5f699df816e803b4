package handshake

import (
	"fmt"

	"github.com/alpinai/skilder/internal/models"
)

// FailureKind enumerates why a handshake was refused. The kind is for
// logs and metrics only; peers always see AUTHENTICATION_FAILED.
type FailureKind int

const (
	// KeyNotFound: the key matched no identity, or the request could not
	// be resolved against it.
	KeyNotFound FailureKind = iota + 1
	// KeyExpired: the key exists but is past its expiry.
	KeyExpired
	// OwnerMissing: the entity the key points to, or the owner needed to
	// create the requested identity, does not exist.
	OwnerMissing
	// RateLimited: too many recent failures for this key prefix or origin.
	RateLimited
)

func (k FailureKind) String() string {
	switch k {
	case KeyNotFound:
		return "key_not_found"
	case KeyExpired:
		return "key_expired"
	case OwnerMissing:
		return "owner_missing"
	case RateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Failure is the only error type the handshake resolution produces.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "handshake refused: " + f.Kind.String()
	}

	return fmt.Sprintf("handshake refused: %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// External maps a failure to the code sent to the peer.
func (f *Failure) External() string {
	switch f.Kind {
	case KeyNotFound, KeyExpired, OwnerMissing, RateLimited:
		return models.HandshakeErrAuthenticationFailed
	default:
		return models.HandshakeErrAuthenticationFailed
	}
}
