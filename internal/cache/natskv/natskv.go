// Package natskv implements cache.Store on NATS JetStream key-value
// buckets, shared by every instance connected to the same cluster.
//
// JetStream ages entries out with the bucket's MaxAge without publishing
// a marker, so watchers only see EXPIRE for keys the cache purges when
// it finds them stale.
package natskv

import (
	"context"
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
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Option configures a Store.
type Option func(*Store)

// WithReplicas sets the replication factor for buckets this store creates.
func WithReplicas(n int) Option {
	return func(s *Store) {
		s.replicas = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.Component(l, "natskv")
	}
}

// Store is a cache.Store backed by JetStream KV.
type Store struct {
	js       jetstream.JetStream
	replicas int
	logger   *slog.Logger

	mu     sync.RWMutex
	kvs    map[string]jetstream.KeyValue
	closed bool
}

var _ cache.Store = (*Store)(nil)

// New creates a store on nc. The connection stays owned by the caller.
func New(nc *nats.Conn, opts ...Option) (*Store, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	s := &Store{
		js:       js,
		replicas: 1,
		logger:   logging.Component(nil, "natskv"),
		kvs:      make(map[string]jetstream.KeyValue),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CreateBucket implements cache.Store.
func (s *Store) CreateBucket(ctx context.Context, name string, ttl time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	kv, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   name,
		TTL:      ttl,
		History:  1,
		Replicas: s.replicas,
	})
	if err != nil {
		return fmt.Errorf("creating kv bucket %s: %w", name, err)
	}

	s.mu.Lock()
	s.kvs[name] = kv
	s.mu.Unlock()

	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}

	return nil
}

func (s *Store) bucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	s.mu.RLock()
	kv, ok := s.kvs[name]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, apperrors.ErrStoreClosed
	}

	if ok {
		return kv, nil
	}

	// Another instance may have created it.
	kv, err := s.js.KeyValue(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, apperrors.ErrBucketNotFound
		}

		return nil, fmt.Errorf("binding kv bucket %s: %w", name, err)
	}

	s.mu.Lock()
	s.kvs[name] = kv
	s.mu.Unlock()

	return kv, nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, bucket, key string) (*cache.Record, error) {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	ek, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}

	entry, err := kv.Get(ctx, ek)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, cache.ErrKeyNotFound
		}

		return nil, fmt.Errorf("kv get %s: %w", bucket, err)
	}

	return &cache.Record{
		Key:      key,
		Value:    entry.Value(),
		Revision: entry.Revision(),
		Created:  entry.Created(),
	}, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return 0, err
	}

	ek, err := EncodeKey(key)
	if err != nil {
		return 0, err
	}

	rev, err := kv.Put(ctx, ek, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", bucket, err)
	}

	return rev, nil
}

// Create implements cache.Store using the server-side
// expected-last-sequence check, so only one writer wins.
func (s *Store) Create(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return 0, err
	}

	ek, err := EncodeKey(key)
	if err != nil {
		return 0, err
	}

	rev, err := kv.Create(ctx, ek, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, cache.ErrKeyExists
		}

		return 0, fmt.Errorf("kv create %s: %w", bucket, err)
	}

	return rev, nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return err
	}

	ek, err := EncodeKey(key)
	if err != nil {
		return err
	}

	if err := kv.Delete(ctx, ek); err != nil {
		return fmt.Errorf("kv delete %s: %w", bucket, err)
	}

	return nil
}

// Purge implements cache.Store.
func (s *Store) Purge(ctx context.Context, bucket, key string) error {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return err
	}

	ek, err := EncodeKey(key)
	if err != nil {
		return err
	}

	if err := kv.Purge(ctx, ek); err != nil {
		return fmt.Errorf("kv purge %s: %w", bucket, err)
	}

	return nil
}

// Keys implements cache.Store.
func (s *Store) Keys(ctx context.Context, bucket string) ([]string, error) {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	lister, err := kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", bucket, err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		dk, err := DecodeKey(k)
		if err != nil {
			s.logger.Warn("skipping undecodable key", slog.String("bucket", bucket), slog.String("key", k))
			continue
		}

		keys = append(keys, dk)
	}

	return keys, nil
}

// Watch implements cache.Store. Only changes made after the call are
// reported.
func (s *Store) Watch(ctx context.Context, bucket string) (cache.Watcher, error) {
	kv, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	// The watch outlives the call; it is bounded by Stop, not ctx.
	kw, err := kv.WatchAll(context.WithoutCancel(ctx), jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", bucket, err)
	}

	w := &watcher{
		kw:     kw,
		ch:     make(chan cache.Event, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go w.forward()

	return w, nil
}

// Close releases bucket handles. The NATS connection is left open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	clear(s.kvs)

	return nil
}

type watcher struct {
	kw     jetstream.KeyWatcher
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

	updates := w.kw.Updates()

	for {
		select {
		case <-w.stop:
			return

		case entry, ok := <-updates:
			if !ok {
				return
			}

			// nil marks the end of the initial snapshot.
			if entry == nil {
				continue
			}

			key, err := DecodeKey(entry.Key())
			if err != nil {
				w.logger.Warn("skipping undecodable key", slog.String("key", entry.Key()))
				continue
			}

			ev := cache.Event{
				Key:       key,
				Revision:  entry.Revision(),
				Timestamp: entry.Created(),
			}

			switch entry.Operation() {
			case jetstream.KeyValuePut:
				ev.Operation = cache.OpPut
				ev.Value = entry.Value()
			case jetstream.KeyValueDelete:
				ev.Operation = cache.OpDelete
			case jetstream.KeyValuePurge:
				ev.Operation = cache.OpExpire
			default:
				continue
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
		err = w.kw.Stop()
		<-w.done
	})

	return err
}

const escapeChar = '='

// EncodeKey maps an arbitrary non-empty key onto the NATS KV key
// alphabet. Bytes outside [-/_a-zA-Z0-9.] and dots that would produce an
// empty subject token are written as "=XX".
func EncodeKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty cache key")
	}

	var b strings.Builder
	b.Grow(len(key))

	for i := 0; i < len(key); i++ {
		c := key[i]

		if c == '.' && i > 0 && i < len(key)-1 && key[i-1] != '.' {
			b.WriteByte(c)
			continue
		}

		if isKeyByte(c) {
			b.WriteByte(c)
			continue
		}

		fmt.Fprintf(&b, "%c%02X", escapeChar, c)
	}

	return b.String(), nil
}

// DecodeKey reverses EncodeKey.
func DecodeKey(s string) (string, error) {
	if !strings.ContainsRune(s, escapeChar) {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != escapeChar {
			b.WriteByte(s[i])
			continue
		}

		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in key %q", s)
		}

		c, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("bad escape in key %q: %w", s, err)
		}

		b.WriteByte(byte(c))
		i += 2
	}

	return b.String(), nil
}

func isKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '/':
		return true
	default:
		return false
	}
}
