package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/oauth"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	BackendNATS   = "nats"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// minSecretLen is the shortest accepted HMAC or key-derivation secret.
const minSecretLen = 32

// Config holds all environment-based configuration for skilder-identity.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`

	// NATS carries handshakes and, with the nats backend, the cache.
	NATSServers   []string `env:"NATS_SERVERS" envSeparator:"," envDefault:"nats://localhost:4222"`
	NATSCredsFile string   `env:"NATS_CREDS_FILE"`
	NATSReplicas  int      `env:"NATS_KV_REPLICAS" envDefault:"1"`

	CacheBackend   string `env:"CACHE_BACKEND" envDefault:"nats"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisUsername  string `env:"REDIS_USERNAME"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"skilder:"`
	CacheBoltPath  string `env:"CACHE_BOLT_PATH" envDefault:"skilder-cache.db"`

	// Bucket TTLs. The nonce TTL must cover the OAuth state lifetime.
	TTLHeartbeat    time.Duration `env:"CACHE_TTL_HEARTBEAT" envDefault:"30s"`
	TTLEphemeral    time.Duration `env:"CACHE_TTL_EPHEMERAL" envDefault:"60s"`
	TTLOAuthNonce   time.Duration `env:"CACHE_TTL_OAUTH_NONCE" envDefault:"10m"`
	TTLRateLimitKey time.Duration `env:"CACHE_TTL_RATE_LIMIT_KEY" envDefault:"15m"`
	TTLRateLimitIP  time.Duration `env:"CACHE_TTL_RATE_LIMIT_IP" envDefault:"1h"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"skilder"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	OAuthStateSecret string `env:"OAUTH_STATE_SECRET"`

	// NATSAccountSigningSeed signs toolset-scoped user JWTs. Optional at
	// startup; issuing a NATS JWT without it fails.
	NATSAccountSigningSeed string `env:"NATS_ACCOUNT_SIGNING_SEED"`

	HandshakeSubject string  `env:"HANDSHAKE_SUBJECT" envDefault:"skilder.handshake"`
	HandshakeQueue   string  `env:"HANDSHAKE_QUEUE" envDefault:"skilder-identity"`
	HandshakeRate    float64 `env:"HANDSHAKE_RATE" envDefault:"200"`
	HandshakeBurst   int     `env:"HANDSHAKE_BURST" envDefault:"50"`

	RateLimitMaxKeyAttempts int `env:"RATE_LIMIT_MAX_KEY_ATTEMPTS" envDefault:"5"`
	RateLimitMaxIPAttempts  int `env:"RATE_LIMIT_MAX_IP_ATTEMPTS" envDefault:"20"`

	// Seed data for the in-memory repositories.
	BootstrapAdminEmail        string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPasswordHash string `env:"BOOTSTRAP_ADMIN_PASSWORD_HASH"`
	BootstrapSystemKey         string `env:"BOOTSTRAP_SYSTEM_KEY"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET: %w", apperrors.ErrSecretTooShort)
	}

	if len(c.OAuthStateSecret) < minSecretLen {
		return fmt.Errorf("OAUTH_STATE_SECRET: %w", apperrors.ErrSecretTooShort)
	}

	if c.JWTSecret == c.OAuthStateSecret {
		return fmt.Errorf("JWT_SECRET and OAUTH_STATE_SECRET must differ")
	}

	switch c.CacheBackend {
	case BackendNATS, BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND is redis")
		}
	case BackendBolt:
		if c.CacheBoltPath == "" {
			return fmt.Errorf("CACHE_BOLT_PATH is required when CACHE_BACKEND is bolt")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want nats, redis, bolt or memory)", c.CacheBackend)
	}

	if len(c.NATSServers) == 0 {
		return fmt.Errorf("NATS_SERVERS is required")
	}

	for name, ttl := range map[string]time.Duration{
		"CACHE_TTL_HEARTBEAT":      c.TTLHeartbeat,
		"CACHE_TTL_EPHEMERAL":      c.TTLEphemeral,
		"CACHE_TTL_RATE_LIMIT_KEY": c.TTLRateLimitKey,
		"CACHE_TTL_RATE_LIMIT_IP":  c.TTLRateLimitIP,
		"JWT_ACCESS_TTL":           c.JWTAccessTTL,
		"JWT_REFRESH_TTL":          c.JWTRefreshTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.TTLOAuthNonce < oauth.StateLifetime {
		return fmt.Errorf("CACHE_TTL_OAUTH_NONCE must be at least %s", oauth.StateLifetime)
	}

	if c.HandshakeRate <= 0 || c.HandshakeBurst <= 0 {
		return fmt.Errorf("HANDSHAKE_RATE and HANDSHAKE_BURST must be positive")
	}

	if c.RateLimitMaxKeyAttempts <= 0 || c.RateLimitMaxIPAttempts <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_KEY_ATTEMPTS and RATE_LIMIT_MAX_IP_ATTEMPTS must be positive")
	}

	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPasswordHash == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD_HASH must be set together")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Buckets returns the cache buckets with the configured TTLs.
func (c *Config) Buckets() []cache.BucketConfig {
	ttl := map[string]time.Duration{
		cache.BucketHeartbeat:    c.TTLHeartbeat,
		cache.BucketEphemeral:    c.TTLEphemeral,
		cache.BucketOAuthNonce:   c.TTLOAuthNonce,
		cache.BucketRateLimitKey: c.TTLRateLimitKey,
		cache.BucketRateLimitIP:  c.TTLRateLimitIP,
	}

	buckets := cache.DefaultBuckets()
	for i := range buckets {
		if d, ok := ttl[buckets[i].Name]; ok {
			buckets[i].TTL = d
		}
	}

	return buckets
}
