package cache

import (
	"context"
	"errors"
	"time"
)

// Operation is the kind of change reported by a watch.
type Operation string

const (
	OpPut    Operation = "PUT"
	OpDelete Operation = "DELETE"
	OpExpire Operation = "EXPIRE"
)

var (
	// ErrKeyNotFound is returned by a Store for absent or expired keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExists is returned by Store.Create when the key is present.
	ErrKeyExists = errors.New("key exists")
)

// Record is a stored value as a backend returns it. Created is the time
// of the write that produced Revision.
type Record struct {
	Key      string
	Value    []byte
	Revision uint64
	Created  time.Time
}

// Event is a single mutation observed on a bucket.
type Event struct {
	Key       string
	Operation Operation
	Value     []byte
	Revision  uint64
	Timestamp time.Time
}

// Watcher streams changes for one bucket. After Stop the channel
// returned by Changes is closed once pending sends are abandoned.
type Watcher interface {
	Changes() <-chan Event
	Stop() error
}

// Store is the replicated key-value capability the cache is built on.
// Revisions are assigned by the store and strictly increase per key.
// Implementations return errors.ErrBucketNotFound for unknown buckets.
type Store interface {
	// CreateBucket creates the bucket or leaves an existing one alone.
	CreateBucket(ctx context.Context, name string, ttl time.Duration) error
	Get(ctx context.Context, bucket, key string) (*Record, error)
	Put(ctx context.Context, bucket, key string, value []byte) (uint64, error)
	// Create writes only if the key is absent, returning ErrKeyExists
	// otherwise. This is the store's native check-and-set.
	Create(ctx context.Context, bucket, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, bucket, key string) error
	// Purge removes a key because it outlived its TTL. Watchers see an
	// EXPIRE change.
	Purge(ctx context.Context, bucket, key string) error
	Keys(ctx context.Context, bucket string) ([]string, error)
	Watch(ctx context.Context, bucket string) (Watcher, error)
	Close() error
}
