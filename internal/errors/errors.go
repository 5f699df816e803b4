// Package errors holds the error taxonomy shared by the identity services.
//
// Masked errors are what a remote caller sees no matter the real cause.
// Operational errors wrap downstream failures and are logged in full but
// surfaced only as the short messages below.
package errors

import "errors"

// Messages returned to callers. These strings are part of the external
// contract and must not change.
const (
	MsgInvalidCredentials   = "Invalid email or password"
	MsgAuthenticationFailed = "Authentication failed"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgSessionNotFound      = "Session not found"
	MsgRefreshFailed        = "Failed to refresh token"
	MsgLogoutFailed         = "Logout failed"
	MsgAccessTokenFailed    = "Failed to generate access token"
)

// Configuration errors.
var (
	ErrSigningSeedMissing = errors.New("NATS account signing seed is not configured (set NATS_ACCOUNT_SIGNING_SEED)")
	ErrSecretTooShort     = errors.New("secret must be at least 32 characters")
)

// Operational errors.
var (
	ErrBucketNotFound = errors.New("bucket not found - call CreateBucket first")
	ErrBucketFull     = errors.New("bucket has reached its maximum number of entries")
	ErrStoreClosed    = errors.New("store is closed")
)

// ErrAccessTokenFailed is returned when a runtime token cannot be persisted.
var ErrAccessTokenFailed = errors.New(MsgAccessTokenFailed)
