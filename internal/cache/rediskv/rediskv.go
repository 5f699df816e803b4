// Package rediskv implements cache.Store on Redis. Each entry is a hash
// holding the value, its revision and its write time; a per-bucket
// counter supplies revisions and change events are published on a
// per-bucket channel.
//
// Redis drops expired keys without notifying subscribers unless
// keyspace notifications are enabled, so EXPIRE events are only seen
// for keys the cache purges itself.
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key, e.g. "skilder:cache:".
	KeyPrefix string
}

// writeScript stores an entry and bumps the bucket revision atomically.
// With ARGV[4] == "create" it refuses to overwrite and returns 0.
var writeScript = redis.NewScript(`
if ARGV[4] == 'create' and redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local rev = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'r', rev, 't', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
else
	redis.call('PERSIST', KEYS[1])
end
return rev
`)

// removeScript deletes an entry and returns the revision assigned to the
// removal, or 0 if there was nothing to remove.
var removeScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
return redis.call('INCR', KEYS[2])
`)

// Store is a cache.Store backed by Redis.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
	now       func() time.Time

	ttls sync.Map // bucket -> time.Duration
}

var _ cache.Store = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewWithClient wraps an existing client. The store takes ownership and
// closes it on Close.
func NewWithClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logging.Component(logger, "rediskv"),
		now:       time.Now,
	}
}

func (s *Store) registryKey() string {
	return s.keyPrefix + "buckets"
}

func (s *Store) bucketBase(bucket string) string {
	return s.keyPrefix + "b:" + bucket + ":"
}

func (s *Store) entryKey(bucket, key string) string {
	return s.bucketBase(bucket) + "k:" + key
}

func (s *Store) revKey(bucket string) string {
	return s.bucketBase(bucket) + "rev"
}

func (s *Store) channel(bucket string) string {
	return s.bucketBase(bucket) + "events"
}

// CreateBucket implements cache.Store. The given TTL replaces any TTL
// registered earlier, so writes from this store expire on the same
// schedule the cache service checks on read.
func (s *Store) CreateBucket(ctx context.Context, name string, ttl time.Duration) error {
	if err := s.client.HSet(ctx, s.registryKey(), name, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("registering bucket %s: %w", name, err)
	}

	s.ttls.Store(name, ttl)

	return nil
}

func (s *Store) bucketTTL(ctx context.Context, bucket string) (time.Duration, error) {
	if v, ok := s.ttls.Load(bucket); ok {
		return v.(time.Duration), nil
	}

	ms, err := s.client.HGet(ctx, s.registryKey(), bucket).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, apperrors.ErrBucketNotFound
		}

		return 0, fmt.Errorf("looking up bucket %s: %w", bucket, err)
	}

	ttl := time.Duration(ms) * time.Millisecond
	s.ttls.Store(bucket, ttl)

	return ttl, nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, bucket, key string) (*cache.Record, error) {
	if _, err := s.bucketTTL(ctx, bucket); err != nil {
		return nil, err
	}

	fields, err := s.client.HGetAll(ctx, s.entryKey(bucket, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", bucket, err)
	}

	if len(fields) == 0 {
		return nil, cache.ErrKeyNotFound
	}

	rev, err := strconv.ParseUint(fields["r"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt revision for %s/%s: %w", bucket, key, err)
	}

	ms, err := strconv.ParseInt(fields["t"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt timestamp for %s/%s: %w", bucket, key, err)
	}

	return &cache.Record{
		Key:      key,
		Value:    []byte(fields["v"]),
		Revision: rev,
		Created:  time.UnixMilli(ms),
	}, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	return s.write(ctx, bucket, key, value, "put")
}

// Create implements cache.Store.
func (s *Store) Create(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	return s.write(ctx, bucket, key, value, "create")
}

func (s *Store) write(ctx context.Context, bucket, key string, value []byte, mode string) (uint64, error) {
	ttl, err := s.bucketTTL(ctx, bucket)
	if err != nil {
		return 0, err
	}

	now := s.now()

	rev, err := writeScript.Run(ctx, s.client,
		[]string{s.entryKey(bucket, key), s.revKey(bucket)},
		value, now.UnixMilli(), ttl.Milliseconds(), mode,
	).Uint64()
	if err != nil {
		return 0, fmt.Errorf("redis %s %s: %w", mode, bucket, err)
	}

	if rev == 0 {
		return 0, cache.ErrKeyExists
	}

	s.publish(ctx, bucket, cache.Event{
		Key:       key,
		Operation: cache.OpPut,
		Value:     value,
		Revision:  rev,
		Timestamp: now,
	})

	return rev, nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	return s.remove(ctx, bucket, key, cache.OpDelete)
}

// Purge implements cache.Store.
func (s *Store) Purge(ctx context.Context, bucket, key string) error {
	return s.remove(ctx, bucket, key, cache.OpExpire)
}

func (s *Store) remove(ctx context.Context, bucket, key string, op cache.Operation) error {
	if _, err := s.bucketTTL(ctx, bucket); err != nil {
		return err
	}

	rev, err := removeScript.Run(ctx, s.client, []string{s.entryKey(bucket, key), s.revKey(bucket)}).Uint64()
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", bucket, err)
	}

	if rev > 0 {
		s.publish(ctx, bucket, cache.Event{Key: key, Operation: op, Revision: rev, Timestamp: s.now()})
	}

	return nil
}

// Keys implements cache.Store.
func (s *Store) Keys(ctx context.Context, bucket string) ([]string, error) {
	if _, err := s.bucketTTL(ctx, bucket); err != nil {
		return nil, err
	}

	prefix := s.entryKey(bucket, "")
	match := escapeGlob(prefix) + "*"

	var (
		keys   []string
		cursor uint64
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", bucket, err)
		}

		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// wireEvent is the pub/sub payload.
type wireEvent struct {
	Key       string          `json:"key"`
	Operation cache.Operation `json:"op"`
	Value     []byte          `json:"value,omitempty"`
	Revision  uint64          `json:"rev"`
	Timestamp int64           `json:"ts"`
}

func (s *Store) publish(ctx context.Context, bucket string, ev cache.Event) {
	data, err := json.Marshal(wireEvent{
		Key:       ev.Key,
		Operation: ev.Operation,
		Value:     ev.Value,
		Revision:  ev.Revision,
		Timestamp: ev.Timestamp.UnixMilli(),
	})
	if err != nil {
		return
	}

	// The write already succeeded; a lost notification only affects watchers.
	if err := s.client.Publish(ctx, s.channel(bucket), data).Err(); err != nil {
		s.logger.Warn("publishing cache event failed",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()),
		)
	}
}

// Watch implements cache.Store.
func (s *Store) Watch(ctx context.Context, bucket string) (cache.Watcher, error) {
	if _, err := s.bucketTTL(ctx, bucket); err != nil {
		return nil, err
	}

	ps := s.client.Subscribe(context.WithoutCancel(ctx), s.channel(bucket))

	// Wait for the subscription to be confirmed so no event published
	// after Watch returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", bucket, err)
	}

	w := &watcher{
		ps:     ps,
		ch:     make(chan cache.Event, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go w.forward()

	return w, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

type watcher struct {
	ps     *redis.PubSub
	ch     chan cache.Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (w *watcher) Changes() <-chan cache.Event {
	return w.ch
}

func (w *watcher) forward() {
	defer close(w.done)
	defer close(w.ch)

	msgs := w.ps.Channel()

	for {
		select {
		case <-w.stop:
			return

		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				w.logger.Warn("dropping malformed cache event", slog.String("error", err.Error()))
				continue
			}

			ev := cache.Event{
				Key:       we.Key,
				Operation: we.Operation,
				Value:     we.Value,
				Revision:  we.Revision,
				Timestamp: time.UnixMilli(we.Timestamp),
			}

			select {
			case w.ch <- ev:
			case <-w.stop:
				return
			}
		}
	}
}

func (w *watcher) Stop() error {
	var err error

	w.once.Do(func() {
		close(w.stop)
		err = w.ps.Close()
		<-w.done
	})

	return err
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
