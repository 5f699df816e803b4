package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrSigningSeedMissing,
		ErrSecretTooShort,
		ErrBucketNotFound,
		ErrBucketFull,
		ErrStoreClosed,
		ErrAccessTokenFailed,
	}
	for i := 0; i < len(sentinels); i++ {
		assert.NotEmpty(t, sentinels[i].Error())
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestExternalMessages(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{MsgInvalidCredentials, "Invalid email or password"},
		{MsgAuthenticationFailed, "Authentication failed"},
		{MsgInvalidRefreshToken, "Invalid refresh token"},
		{MsgSessionNotFound, "Session not found"},
		{MsgRefreshFailed, "Failed to refresh token"},
		{MsgLogoutFailed, "Logout failed"},
		{ErrAccessTokenFailed.Error(), "Failed to generate access token"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestBucketNotFound_MentionsCreateBucket(t *testing.T) {
	assert.Contains(t, ErrBucketNotFound.Error(), "CreateBucket")
}
