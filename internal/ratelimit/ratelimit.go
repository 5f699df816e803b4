// Package ratelimit throttles credential guessing with counters kept in
// the shared cache. Counters are keyed by a short non-secret prefix of
// the presented credential and, separately, by source IP, so that a
// single origin trying many credentials is slowed as well.
//
// The counters ride on cache.Service.Increment and inherit its
// best-effort semantics across instances: a burst spread over several
// instances may slip a few attempts past the threshold.
package ratelimit

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/alpinai/skilder/internal/cache"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/metrics"
)

// prefixLen is how much of a credential is used as the counter key.
const prefixLen = 8

// Defaults match the bucket TTLs in cache.DefaultBuckets.
const (
	DefaultMaxKeyAttempts = 5
	DefaultMaxIPAttempts  = 20
)

// Counters is the part of the cache the limiter needs.
type Counters interface {
	Get(ctx context.Context, bucket, key string) (*cache.RawEntry, error)
	Increment(ctx context.Context, bucket, key string, delta int64) (int64, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Config sets the thresholds and the buckets the counters live in. The
// window of each counter is the TTL of its bucket.
type Config struct {
	MaxKeyAttempts int
	MaxIPAttempts  int
	KeyBucket      string
	IPBucket       string
}

func (c *Config) applyDefaults() {
	if c.MaxKeyAttempts <= 0 {
		c.MaxKeyAttempts = DefaultMaxKeyAttempts
	}

	if c.MaxIPAttempts <= 0 {
		c.MaxIPAttempts = DefaultMaxIPAttempts
	}

	if c.KeyBucket == "" {
		c.KeyBucket = cache.BucketRateLimitKey
	}

	if c.IPBucket == "" {
		c.IPBucket = cache.BucketRateLimitIP
	}
}

// Limiter answers whether another attempt is allowed.
type Limiter struct {
	counters Counters
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a limiter. Zero config fields take their defaults.
func New(counters Counters, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	cfg.applyDefaults()

	return &Limiter{
		counters: counters,
		cfg:      cfg,
		logger:   logging.Component(logger, "ratelimit"),
		metrics:  m,
	}
}

// KeyPrefix returns the part of a credential used for counting. Only
// the leading characters are kept so the secret never reaches the cache
// or the logs.
func KeyPrefix(secret string) string {
	if len(secret) <= prefixLen {
		return secret
	}

	return secret[:prefixLen]
}

func (l *Limiter) count(ctx context.Context, bucket, key string) int64 {
	e, err := l.counters.Get(ctx, bucket, key)
	if err != nil || e == nil {
		return 0
	}

	n, err := strconv.ParseInt(string(e.Value), 10, 64)
	if err != nil {
		l.logger.Warn("ignoring malformed attempt counter", slog.String("bucket", bucket))
		return 0
	}

	return n
}

// CheckKeyAttempt reports whether another attempt with this key prefix
// is allowed. It turns false once MaxKeyAttempts failures have been
// recorded inside the window.
func (l *Limiter) CheckKeyAttempt(ctx context.Context, keyPrefix string) bool {
	if l.count(ctx, l.cfg.KeyBucket, keyPrefix) >= int64(l.cfg.MaxKeyAttempts) {
		l.logger.Warn("key attempts exhausted", slog.String("key_prefix", keyPrefix))
		l.metrics.RateLimited("key")

		return false
	}

	return true
}

// CheckIPAttempt reports whether another attempt from ip is allowed. An
// empty ip is never limited.
func (l *Limiter) CheckIPAttempt(ctx context.Context, ip string) bool {
	if ip == "" {
		return true
	}

	if l.count(ctx, l.cfg.IPBucket, ip) >= int64(l.cfg.MaxIPAttempts) {
		l.logger.Warn("ip attempts exhausted", slog.String("ip", ip))
		l.metrics.RateLimited("ip")

		return false
	}

	return true
}

// RecordSuccessfulAttempt clears the key counter. The IP counter is left
// alone so one valid credential cannot launder a guessing origin.
func (l *Limiter) RecordSuccessfulAttempt(ctx context.Context, keyPrefix string) {
	if err := l.counters.Delete(ctx, l.cfg.KeyBucket, keyPrefix); err != nil {
		l.logger.Warn("clearing key attempts failed",
			slog.String("key_prefix", keyPrefix),
			slog.String("error", err.Error()),
		)
	}
}

// RecordFailedAttempt bumps the key counter and, when ip is set, the IP
// counter. Each write restarts that counter's window.
func (l *Limiter) RecordFailedAttempt(ctx context.Context, keyPrefix, ip string) {
	n, err := l.counters.Increment(ctx, l.cfg.KeyBucket, keyPrefix, 1)
	if err != nil {
		l.logger.Warn("recording key attempt failed",
			slog.String("key_prefix", keyPrefix),
			slog.String("error", err.Error()),
		)
	} else {
		l.logger.Debug("failed key attempt", slog.String("key_prefix", keyPrefix), slog.Int64("count", n))
	}

	l.RecordFailedIPAttempt(ctx, ip)
}

// RecordFailedIPAttempt bumps only the IP counter. Endpoints without a
// key, such as password login, use it. An empty ip is ignored.
func (l *Limiter) RecordFailedIPAttempt(ctx context.Context, ip string) {
	if ip == "" {
		return
	}

	if _, err := l.counters.Increment(ctx, l.cfg.IPBucket, ip, 1); err != nil {
		l.logger.Warn("recording ip attempt failed",
			slog.String("ip", ip),
			slog.String("error", err.Error()),
		)
	}
}
