// Package state persists cache buckets in a local bbolt database. It is
// the single-node cache backend: entries survive restarts but nothing is
// shared between processes.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	apperrors "github.com/alpinai/skilder/internal/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	// sweepInterval controls how often expired entries are removed.
	sweepInterval = 30 * time.Second
)

// metaBucket maps cache bucket names to their TTL in milliseconds.
var metaBucket = []byte("meta")

func dataBucket(name string) []byte {
	return []byte("cache:" + name)
}

// record is the on-disk form of a cache entry.
type record struct {
	Value    []byte `json:"v"`
	Revision uint64 `json:"r"`
	Created  int64  `json:"t"`
}

// Option configures a State.
type Option func(*State)

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// State wraps a bbolt database holding cache buckets.
type State struct {
	// pubMu spans a write transaction and the publish of its event, so
	// watchers see a bucket's revisions in order.
	pubMu  sync.Mutex
	db     *bolt.DB
	feed   *cache.Broadcaster
	now    func() time.Time
	stopGC chan struct{}
	once   sync.Once
	closed atomic.Bool
}

var _ cache.Store = (*State)(nil)

// LoadAt opens a state database at the given path, creating it if it
// does not exist, and starts the expiry sweep.
func LoadAt(path string, opts ...Option) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	s := &State{
		db:     db,
		feed:   cache.NewBroadcaster(),
		now:    time.Now,
		stopGC: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.gcLoop()

	return s, nil
}

// Close stops the sweep, ends all watchers and closes the database.
func (s *State) Close() error {
	var err error

	s.once.Do(func() {
		s.closed.Store(true)
		close(s.stopGC)
		s.feed.Close()
		err = s.db.Close()
	})

	return err
}

func (s *State) gcLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.sweep()
		case <-s.stopGC:
			return
		}
	}
}

// sweep deletes expired entries and reports them to watchers.
func (s *State) sweep() error {
	if s.closed.Load() {
		return apperrors.ErrStoreClosed
	}

	type expired struct {
		bucket string
		key    string
		rev    uint64
	}

	var gone []expired

	now := s.now()

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).ForEach(func(name, v []byte) error {
			ttl, err := parseTTL(v)
			if err != nil || ttl <= 0 {
				return err
			}

			b := tx.Bucket(dataBucket(string(name)))
			if b == nil {
				return nil
			}

			var keys [][]byte

			err = b.ForEach(func(k, v []byte) error {
				var r record
				if err := json.Unmarshal(v, &r); err != nil {
					return err
				}

				if now.Sub(time.UnixMilli(r.Created)) > ttl {
					keys = append(keys, append([]byte(nil), k...))
				}

				return nil
			})
			if err != nil {
				return err
			}

			for _, k := range keys {
				if err := b.Delete(k); err != nil {
					return err
				}

				rev, err := b.NextSequence()
				if err != nil {
					return err
				}

				gone = append(gone, expired{bucket: string(name), key: string(k), rev: rev})
			}

			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("sweeping expired entries: %w", err)
	}

	for _, e := range gone {
		s.feed.Publish(e.bucket, cache.Event{Key: e.key, Operation: cache.OpExpire, Revision: e.rev, Timestamp: now})
	}

	return nil
}

func parseTTL(v []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt bucket ttl %q: %w", v, err)
	}

	return time.Duration(ms) * time.Millisecond, nil
}

// CreateBucket implements cache.Store. An existing bucket keeps its TTL.
func (s *State) CreateBucket(_ context.Context, name string, ttl time.Duration) error {
	if s.closed.Load() {
		return apperrors.ErrStoreClosed
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta.Get([]byte(name)) == nil {
			if err := meta.Put([]byte(name), []byte(strconv.FormatInt(ttl.Milliseconds(), 10))); err != nil {
				return err
			}
		}

		_, err := tx.CreateBucketIfNotExists(dataBucket(name))

		return err
	})
}

// open returns the data bucket and its TTL.
func (s *State) open(tx *bolt.Tx, name string) (*bolt.Bucket, time.Duration, error) {
	v := tx.Bucket(metaBucket).Get([]byte(name))
	b := tx.Bucket(dataBucket(name))

	if v == nil || b == nil {
		return nil, 0, apperrors.ErrBucketNotFound
	}

	ttl, err := parseTTL(v)
	if err != nil {
		return nil, 0, err
	}

	return b, ttl, nil
}

func (s *State) live(r *record, ttl time.Duration) bool {
	return ttl <= 0 || s.now().Sub(time.UnixMilli(r.Created)) <= ttl
}

// Get implements cache.Store.
func (s *State) Get(_ context.Context, bucket, key string) (*cache.Record, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrStoreClosed
	}

	var rec *cache.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		b, ttl, err := s.open(tx, bucket)
		if err != nil {
			return err
		}

		v := b.Get([]byte(key))
		if v == nil {
			return cache.ErrKeyNotFound
		}

		var r record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("decoding %s/%s: %w", bucket, key, err)
		}

		if !s.live(&r, ttl) {
			return cache.ErrKeyNotFound
		}

		rec = &cache.Record{
			Key:      key,
			Value:    r.Value,
			Revision: r.Revision,
			Created:  time.UnixMilli(r.Created),
		}

		return nil
	})

	return rec, err
}

// Put implements cache.Store.
func (s *State) Put(_ context.Context, bucket, key string, value []byte) (uint64, error) {
	return s.write(bucket, key, value, false)
}

// Create implements cache.Store.
func (s *State) Create(_ context.Context, bucket, key string, value []byte) (uint64, error) {
	return s.write(bucket, key, value, true)
}

func (s *State) write(bucket, key string, value []byte, create bool) (uint64, error) {
	if s.closed.Load() {
		return 0, apperrors.ErrStoreClosed
	}

	now := s.now()

	var rev uint64

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, ttl, err := s.open(tx, bucket)
		if err != nil {
			return err
		}

		if create {
			if v := b.Get([]byte(key)); v != nil {
				var r record
				if err := json.Unmarshal(v, &r); err == nil && s.live(&r, ttl) {
					return cache.ErrKeyExists
				}
			}
		}

		rev, err = b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(record{Value: value, Revision: rev, Created: now.UnixMilli()})
		if err != nil {
			return err
		}

		return b.Put([]byte(key), data)
	})
	if err != nil {
		return 0, err
	}

	s.feed.Publish(bucket, cache.Event{
		Key:       key,
		Operation: cache.OpPut,
		Value:     append([]byte(nil), value...),
		Revision:  rev,
		Timestamp: now,
	})

	return rev, nil
}

// Delete implements cache.Store.
func (s *State) Delete(_ context.Context, bucket, key string) error {
	return s.remove(bucket, key, cache.OpDelete)
}

// Purge implements cache.Store.
func (s *State) Purge(_ context.Context, bucket, key string) error {
	return s.remove(bucket, key, cache.OpExpire)
}

func (s *State) remove(bucket, key string, op cache.Operation) error {
	if s.closed.Load() {
		return apperrors.ErrStoreClosed
	}

	var rev uint64

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, _, err := s.open(tx, bucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(key)) == nil {
			return nil
		}

		if err := b.Delete([]byte(key)); err != nil {
			return err
		}

		rev, err = b.NextSequence()

		return err
	})
	if err != nil {
		return err
	}

	if rev > 0 {
		s.feed.Publish(bucket, cache.Event{Key: key, Operation: op, Revision: rev, Timestamp: s.now()})
	}

	return nil
}

// Keys implements cache.Store.
func (s *State) Keys(_ context.Context, bucket string) ([]string, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrStoreClosed
	}

	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b, ttl, err := s.open(tx, bucket)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			if s.live(&r, ttl) {
				keys = append(keys, string(k))
			}

			return nil
		})
	})

	return keys, err
}

// Watch implements cache.Store. Watchers only see changes made through
// this process.
func (s *State) Watch(_ context.Context, bucket string) (cache.Watcher, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrStoreClosed
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		_, _, err := s.open(tx, bucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.feed.Subscribe(bucket), nil
}
