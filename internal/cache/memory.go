package cache

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
)

// sweepInterval controls how often the memory store reaps expired keys.
const sweepInterval = time.Second

type memBucket struct {
	ttl      time.Duration
	revision uint64
	records  map[string]*Record
}

// MemoryStore is a process-local Store. It provides the same contract as
// the replicated backends for tests and single-process development, but
// nothing is shared between instances.
type MemoryStore struct {
	// pubMu is held by writers from the mutation until their event is
	// published, so watchers see a bucket's revisions in order. Readers
	// only take mu.
	pubMu   sync.Mutex
	mu      sync.Mutex
	buckets map[string]*memBucket
	feed    *Broadcaster
	stopGC  chan struct{}
	once    sync.Once
	closed  bool
}

// NewMemoryStore creates an empty store and starts a background goroutine
// that removes expired keys. Call Close to stop it.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*memBucket),
		feed:    NewBroadcaster(),
		stopGC:  make(chan struct{}),
	}
	go s.gcLoop()

	return s
}

func (s *MemoryStore) gcLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopGC:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()

	type expired struct {
		bucket string
		key    string
	}

	var gone []expired

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	for name, b := range s.buckets {
		if b.ttl <= 0 {
			continue
		}

		for key, rec := range b.records {
			if now.Sub(rec.Created) > b.ttl {
				delete(b.records, key)
				gone = append(gone, expired{bucket: name, key: key})
			}
		}
	}
	s.mu.Unlock()

	for _, e := range gone {
		s.feed.Publish(e.bucket, Event{Key: e.key, Operation: OpExpire, Timestamp: now})
	}
}

// CreateBucket implements Store.
func (s *MemoryStore) CreateBucket(_ context.Context, name string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}

	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = &memBucket{ttl: ttl, records: make(map[string]*Record)}
	}

	return nil
}

// bucket must be called with s.mu held.
func (s *MemoryStore) bucket(name string) (*memBucket, error) {
	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}

	b, ok := s.buckets[name]
	if !ok {
		return nil, apperrors.ErrBucketNotFound
	}

	return b, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, bucket, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	rec, ok := b.records[key]
	if !ok || (b.ttl > 0 && time.Since(rec.Created) > b.ttl) {
		return nil, ErrKeyNotFound
	}

	cp := *rec
	cp.Value = append([]byte(nil), rec.Value...)

	return &cp, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, bucket, key string, value []byte) (uint64, error) {
	return s.write(bucket, key, value, false)
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, bucket, key string, value []byte) (uint64, error) {
	return s.write(bucket, key, value, true)
}

func (s *MemoryStore) write(bucket, key string, value []byte, create bool) (uint64, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()

	b, err := s.bucket(bucket)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	now := time.Now()

	if create {
		if rec, ok := b.records[key]; ok && (b.ttl <= 0 || now.Sub(rec.Created) <= b.ttl) {
			s.mu.Unlock()
			return 0, ErrKeyExists
		}
	}

	b.revision++
	rec := &Record{
		Key:      key,
		Value:    append([]byte(nil), value...),
		Revision: b.revision,
		Created:  now,
	}
	b.records[key] = rec
	s.mu.Unlock()

	s.feed.Publish(bucket, Event{
		Key:       key,
		Operation: OpPut,
		Value:     rec.Value,
		Revision:  rec.Revision,
		Timestamp: now,
	})

	return rec.Revision, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	return s.remove(bucket, key, OpDelete)
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, bucket, key string) error {
	return s.remove(bucket, key, OpExpire)
}

func (s *MemoryStore) remove(bucket, key string, op Operation) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()

	b, err := s.bucket(bucket)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	_, existed := b.records[key]
	delete(b.records, key)
	b.revision++
	rev := b.revision
	s.mu.Unlock()

	if existed {
		s.feed.Publish(bucket, Event{Key: key, Operation: op, Revision: rev, Timestamp: time.Now()})
	}

	return nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, bucket string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(b.records))
	for k, rec := range b.records {
		if b.ttl > 0 && time.Since(rec.Created) > b.ttl {
			continue
		}

		keys = append(keys, k)
	}

	return keys, nil
}

// Watch implements Store.
func (s *MemoryStore) Watch(_ context.Context, bucket string) (Watcher, error) {
	s.mu.Lock()
	_, err := s.bucket(bucket)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return s.feed.Subscribe(bucket), nil
}

// Close stops the sweeper and all watchers. It is safe to call more
// than once.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.stopGC)
		s.feed.Close()
	})

	return nil
}
