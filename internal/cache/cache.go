// Package cache provides bucketed key-value caching over a replicated
// store. Buckets carry a default TTL; entries carry store-assigned
// revisions; changes can be watched.
//
// Counters and GetOrSet are read-modify-write sequences. They are
// serialised within one process but are not atomic across instances:
// two instances incrementing the same key at once can lose an update.
// Rate limiting tolerates that. Callers that cannot must use Claim,
// which maps to the store's native check-and-set.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/lifecycle"
	"github.com/alpinai/skilder/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Default bucket names.
const (
	BucketHeartbeat     = "heartbeat"
	BucketEphemeral     = "ephemeral"
	BucketOAuthNonce    = "oauth-nonce"
	BucketRateLimitKey  = "rate-limit-key"
	BucketRateLimitIP   = "rate-limit-ip"
	defaultServiceName  = "cache"
	defaultWatchBacklog = 64
)

// BucketConfig describes a bucket. A zero TTL never expires entries and
// a zero MaxEntries means no cap.
type BucketConfig struct {
	Name       string
	TTL        time.Duration
	MaxEntries int
}

// DefaultBuckets returns the bucket set every deployment creates on start.
func DefaultBuckets() []BucketConfig {
	return []BucketConfig{
		{Name: BucketHeartbeat, TTL: 30 * time.Second},
		{Name: BucketEphemeral, TTL: 60 * time.Second},
		{Name: BucketOAuthNonce, TTL: 10 * time.Minute},
		{Name: BucketRateLimitKey, TTL: 15 * time.Minute},
		{Name: BucketRateLimitIP, TTL: time.Hour},
	}
}

// Entry is a cached value together with its store metadata.
type Entry[V any] struct {
	Key       string
	Value     V
	Revision  uint64
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// RawEntry is an entry holding undecoded bytes.
type RawEntry = Entry[[]byte]

// Option configures a Service.
type Option func(*Service)

// WithBuckets replaces the buckets created when the service starts.
func WithBuckets(buckets ...BucketConfig) Option {
	return func(s *Service) {
		s.defaults = buckets
	}
}

// WithClock overrides the time source used for lazy expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service is the bucket-scoped cache. It embeds a lifecycle controller:
// consumers call Start before use and Stop when done, and the default
// buckets are created exactly once on the first Start.
type Service struct {
	*lifecycle.Controller

	store    Store
	logger   *slog.Logger
	now      func() time.Time
	defaults []BucketConfig

	mu      sync.RWMutex
	buckets map[string]BucketConfig
	subs    map[*Subscription]struct{}

	flight singleflight.Group
	locks  [lockStripes]sync.Mutex
}

// New creates a cache service over store.
func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   logging.Component(logger, "cache"),
		now:      time.Now,
		defaults: DefaultBuckets(),
		buckets:  make(map[string]BucketConfig),
		subs:     make(map[*Subscription]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Controller = lifecycle.New(defaultServiceName, lifecycle.Hooks{
		Initialize: s.initialize,
		Shutdown:   s.shutdown,
	})

	return s
}

func (s *Service) initialize(ctx context.Context) error {
	for _, b := range s.defaults {
		if err := s.CreateBucket(ctx, b.Name, b.TTL, b.MaxEntries); err != nil {
			return err
		}
	}

	s.logger.Info("cache started", slog.Int("buckets", len(s.defaults)))

	return nil
}

func (s *Service) shutdown(context.Context) error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	s.logger.Info("cache stopped", slog.Int("subscriptions_closed", len(subs)))

	return nil
}

// CreateBucket establishes a bucket and its expiry policy. Creating an
// existing bucket is a no-op.
func (s *Service) CreateBucket(ctx context.Context, name string, ttl time.Duration, maxEntries int) error {
	if name == "" {
		return fmt.Errorf("bucket name is required")
	}

	s.mu.RLock()
	_, ok := s.buckets[name]
	s.mu.RUnlock()

	if ok {
		return nil
	}

	if err := s.store.CreateBucket(ctx, name, ttl); err != nil {
		return fmt.Errorf("creating bucket %s: %w", name, err)
	}

	s.mu.Lock()
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = BucketConfig{Name: name, TTL: ttl, MaxEntries: maxEntries}
	}
	s.mu.Unlock()

	s.logger.Debug("bucket ready", slog.String("bucket", name), slog.Duration("ttl", ttl))

	return nil
}

func (s *Service) bucket(name string) (BucketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.buckets[name]
	if !ok {
		return BucketConfig{}, fmt.Errorf("%w: %s", apperrors.ErrBucketNotFound, name)
	}

	return cfg, nil
}

// Get returns the live entry for key, or nil when it is absent, expired
// or unreadable. Store failures are logged and reported as a miss.
func (s *Service) Get(ctx context.Context, bucket, key string) (*RawEntry, error) {
	cfg, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Warn("cache get failed, treating as miss",
				slog.String("bucket", bucket),
				slog.String("error", err.Error()),
			)
		}

		return nil, nil
	}

	if cfg.TTL > 0 && s.now().Sub(rec.Created) > cfg.TTL {
		if err := s.store.Purge(ctx, bucket, key); err != nil {
			s.logger.Debug("purging expired entry failed",
				slog.String("bucket", bucket),
				slog.String("error", err.Error()),
			)
		}

		return nil, nil
	}

	return s.entry(cfg, rec), nil
}

func (s *Service) entry(cfg BucketConfig, rec *Record) *RawEntry {
	e := &RawEntry{
		Key:       rec.Key,
		Value:     rec.Value,
		Revision:  rec.Revision,
		CreatedAt: rec.Created,
	}

	if cfg.TTL > 0 {
		exp := rec.Created.Add(cfg.TTL)
		e.ExpiresAt = &exp
	}

	return e
}

// Put overwrites key and returns the new revision.
func (s *Service) Put(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	cfg, err := s.bucket(bucket)
	if err != nil {
		return 0, err
	}

	if err := s.checkCapacity(ctx, cfg, key); err != nil {
		return 0, err
	}

	rev, err := s.store.Put(ctx, bucket, key, value)
	if err != nil {
		return 0, fmt.Errorf("putting %s/%s: %w", bucket, key, err)
	}

	return rev, nil
}

// Claim writes key only if it is absent and reports whether this call
// won. It uses the store's check-and-set, so exactly one of several
// concurrent claimers across instances succeeds.
func (s *Service) Claim(ctx context.Context, bucket, key string, value []byte) (bool, error) {
	cfg, err := s.bucket(bucket)
	if err != nil {
		return false, err
	}

	if err := s.checkCapacity(ctx, cfg, key); err != nil {
		return false, err
	}

	if _, err := s.store.Create(ctx, bucket, key, value); err != nil {
		if errors.Is(err, ErrKeyExists) {
			return false, nil
		}

		return false, fmt.Errorf("claiming %s/%s: %w", bucket, key, err)
	}

	return true, nil
}

// checkCapacity rejects a write of a new key into a full bucket.
func (s *Service) checkCapacity(ctx context.Context, cfg BucketConfig, key string) error {
	if cfg.MaxEntries <= 0 {
		return nil
	}

	if _, err := s.store.Get(ctx, cfg.Name, key); err == nil {
		return nil
	}

	keys, err := s.store.Keys(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("counting %s: %w", cfg.Name, err)
	}

	if len(keys) >= cfg.MaxEntries {
		return fmt.Errorf("%w: %s (%d)", apperrors.ErrBucketFull, cfg.Name, cfg.MaxEntries)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Service) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.bucket(bucket); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, bucket, key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("deleting %s/%s: %w", bucket, key, err)
	}

	return nil
}

// lockStripes is the number of mutexes Increment hashes keys onto. The
// table is fixed so caller-chosen keys cannot grow it.
const lockStripes = 64

func (s *Service) keyLock(bucket, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(bucket))
	h.Write([]byte{0})
	h.Write([]byte(key))

	return &s.locks[h.Sum32()%lockStripes]
}

// Increment adds delta to the integer stored at key (absent counts as
// zero) and returns the new value. See the package documentation for
// its cross-instance limits.
func (s *Service) Increment(ctx context.Context, bucket, key string, delta int64) (int64, error) {
	if _, err := s.bucket(bucket); err != nil {
		return 0, err
	}

	mu := s.keyLock(bucket, key)
	mu.Lock()
	defer mu.Unlock()

	var current int64

	entry, err := s.Get(ctx, bucket, key)
	if err != nil {
		return 0, err
	}

	if entry != nil {
		current, err = strconv.ParseInt(string(entry.Value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("counter %s/%s is not an integer: %w", bucket, key, err)
		}
	}

	next := current + delta
	if _, err := s.Put(ctx, bucket, key, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}

	return next, nil
}

// GetOrSet returns the existing entry for key, or stores and returns the
// value produced by factory. Concurrent callers in this process share a
// single factory run.
func (s *Service) GetOrSet(ctx context.Context, bucket, key string, factory func(ctx context.Context) ([]byte, error)) (*RawEntry, error) {
	cfg, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	if e, _ := s.Get(ctx, bucket, key); e != nil {
		return e, nil
	}

	v, err, _ := s.flight.Do(bucket+"\x00"+key, func() (any, error) {
		if e, _ := s.Get(ctx, bucket, key); e != nil {
			return e, nil
		}

		value, err := factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("computing %s/%s: %w", bucket, key, err)
		}

		rev, err := s.Put(ctx, bucket, key, value)
		if err != nil {
			return nil, err
		}

		return s.entry(cfg, &Record{Key: key, Value: value, Revision: rev, Created: s.now()}), nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*RawEntry), nil
}

// Keys lists the live keys of bucket, sorted. A non-empty pattern is
// matched with path.Match semantics ("*" and "?" wildcards).
func (s *Service) Keys(ctx context.Context, bucket, pattern string) ([]string, error) {
	if _, err := s.bucket(bucket); err != nil {
		return nil, err
	}

	keys, err := s.store.Keys(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}

	if pattern != "" {
		keys = slices.DeleteFunc(keys, func(k string) bool {
			ok, err := path.Match(pattern, k)
			return err != nil || !ok
		})
	}

	slices.Sort(keys)

	return keys, nil
}

// Clear deletes every key in bucket and returns how many were removed.
func (s *Service) Clear(ctx context.Context, bucket string) (int, error) {
	keys, err := s.Keys(ctx, bucket, "")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, k := range keys {
		if err := s.store.Delete(ctx, bucket, k); err != nil {
			return deleted, fmt.Errorf("clearing %s: %w", bucket, err)
		}

		deleted++
	}

	return deleted, nil
}
