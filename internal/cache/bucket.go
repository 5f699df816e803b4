package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Bucket is a typed view of one cache bucket. Values are stored as JSON.
type Bucket[V any] struct {
	svc  *Service
	name string
}

// NewBucket returns a typed handle on an existing bucket.
func NewBucket[V any](svc *Service, name string) *Bucket[V] {
	return &Bucket[V]{svc: svc, name: name}
}

// Name returns the bucket name.
func (b *Bucket[V]) Name() string {
	return b.name
}

// Get returns the decoded entry, or nil on a miss. An entry that no
// longer decodes is treated as a miss.
func (b *Bucket[V]) Get(ctx context.Context, key string) (*Entry[V], error) {
	raw, err := b.svc.Get(ctx, b.name, key)
	if err != nil || raw == nil {
		return nil, err
	}

	e, err := Decode[V](raw)
	if err != nil {
		b.svc.logger.Warn("discarding undecodable entry", "bucket", b.name, "error", err)
		return nil, nil
	}

	return e, nil
}

// Put encodes value and stores it under key.
func (b *Bucket[V]) Put(ctx context.Context, key string, value V) (uint64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encoding %s/%s: %w", b.name, key, err)
	}

	return b.svc.Put(ctx, b.name, key, data)
}

// GetOrSet returns the existing entry or stores the factory's value.
func (b *Bucket[V]) GetOrSet(ctx context.Context, key string, factory func(ctx context.Context) (V, error)) (*Entry[V], error) {
	raw, err := b.svc.GetOrSet(ctx, b.name, key, func(ctx context.Context) ([]byte, error) {
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}

		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}

	return Decode[V](raw)
}

// Delete removes key.
func (b *Bucket[V]) Delete(ctx context.Context, key string) error {
	return b.svc.Delete(ctx, b.name, key)
}

// Watch subscribes to the bucket. Use DecodeEvent to read values.
func (b *Bucket[V]) Watch(ctx context.Context, opts WatchOptions) (*Subscription, error) {
	return b.svc.Watch(ctx, b.name, opts)
}

// Decode converts a raw entry into a typed one.
func Decode[V any](raw *RawEntry) (*Entry[V], error) {
	var v V
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", raw.Key, err)
	}

	return &Entry[V]{
		Key:       raw.Key,
		Value:     v,
		Revision:  raw.Revision,
		CreatedAt: raw.CreatedAt,
		ExpiresAt: raw.ExpiresAt,
	}, nil
}

// DecodeEvent decodes the value carried by a PUT event. Events without
// a value decode to the zero value.
func DecodeEvent[V any](ev Event) (V, error) {
	var v V
	if len(ev.Value) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(ev.Value, &v); err != nil {
		return v, fmt.Errorf("decoding event for %s: %w", ev.Key, err)
	}

	return v, nil
}
