package config

import (
	"os"
	"testing"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"ENVIRONMENT",
		"LOG_LEVEL",
		"HTTP_LISTEN_ADDR",
		"NATS_SERVERS",
		"CACHE_BACKEND",
		"REDIS_ADDR",
		"CACHE_BOLT_PATH",
		"CACHE_TTL_HEARTBEAT",
		"CACHE_TTL_OAUTH_NONCE",
		"JWT_SECRET",
		"JWT_ACCESS_TTL",
		"OAUTH_STATE_SECRET",
		"NATS_ACCOUNT_SIGNING_SEED",
		"HANDSHAKE_RATE",
		"RATE_LIMIT_MAX_KEY_ATTEMPTS",
		"BOOTSTRAP_ADMIN_EMAIL",
		"BOOTSTRAP_ADMIN_PASSWORD_HASH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// setRequiredEnv sets the minimum env vars for a valid config.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "jwt-secret-0123456789abcdef012345")
	t.Setenv("OAUTH_STATE_SECRET", "state-secret-0123456789abcdef0123")
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":8080", cfg.HTTPListenAddr)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATSServers)
	assert.Equal(t, BackendNATS, cfg.CacheBackend)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, "skilder.handshake", cfg.HandshakeSubject)
	assert.Equal(t, "skilder-identity", cfg.HandshakeQueue)
	assert.Equal(t, 5, cfg.RateLimitMaxKeyAttempts)
	assert.Equal(t, 20, cfg.RateLimitMaxIPAttempts)
	assert.Empty(t, cfg.NATSAccountSigningSeed)
}

func TestLoad_MissingSecrets(t *testing.T) {
	clearConfigEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSecretTooShort)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "jwt-secret-0123456789abcdef012345")
	t.Setenv("OAUTH_STATE_SECRET", "too-short")

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH_STATE_SECRET")
}

func TestLoad_SecretsMustDiffer(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("JWT_SECRET", "same-secret-0123456789abcdef0123456")
	t.Setenv("OAUTH_STATE_SECRET", "same-secret-0123456789abcdef0123456")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_CacheBackend(t *testing.T) {
	tests := []struct {
		value   string
		want    string
		wantErr bool
	}{
		{"nats", BackendNATS, false},
		{" Redis ", BackendRedis, false},
		{"bolt", BackendBolt, false},
		{"memory", BackendMemory, false},
		{"memcached", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clearConfigEnv(t)
			setRequiredEnv(t)
			t.Setenv("CACHE_BACKEND", tt.value)

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.CacheBackend)
		})
	}
}

func TestLoad_NATSServersList(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("NATS_SERVERS", "nats://a:4222,nats://b:4222")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATSServers)
}

func TestLoad_NonceTTLCoversStateLifetime(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("CACHE_TTL_OAUTH_NONCE", "5m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL_OAUTH_NONCE")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("JWT_ACCESS_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NonPositiveValues(t *testing.T) {
	for key, value := range map[string]string{
		"CACHE_TTL_HEARTBEAT":         "0s",
		"HANDSHAKE_RATE":              "0",
		"RATE_LIMIT_MAX_KEY_ATTEMPTS": "-1",
	} {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			setRequiredEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_BootstrapAdminPair(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "admin@example.com")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD_HASH", "$2a$10$hash")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", cfg.BootstrapAdminEmail)
}

func TestLoad_Production(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestBuckets_UsesConfiguredTTLs(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("CACHE_TTL_HEARTBEAT", "45s")
	t.Setenv("CACHE_TTL_OAUTH_NONCE", "20m")

	cfg, err := Load()
	require.NoError(t, err)

	got := make(map[string]time.Duration)
	for _, b := range cfg.Buckets() {
		got[b.Name] = b.TTL
	}

	assert.Equal(t, map[string]time.Duration{
		cache.BucketHeartbeat:    45 * time.Second,
		cache.BucketEphemeral:    60 * time.Second,
		cache.BucketOAuthNonce:   20 * time.Minute,
		cache.BucketRateLimitKey: 15 * time.Minute,
		cache.BucketRateLimitIP:  time.Hour,
	}, got)
}
