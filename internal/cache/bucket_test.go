package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type heartbeat struct {
	RuntimeID string `json:"runtimeId"`
	Seq       int    `json:"seq"`
}

func TestBucket_PutGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := NewBucket[heartbeat](svc, BucketHeartbeat)

	rev, err := b.Put(ctx, "rt-1", heartbeat{RuntimeID: "rt-1", Seq: 7})
	require.NoError(t, err)

	e, err := b.Get(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, heartbeat{RuntimeID: "rt-1", Seq: 7}, e.Value)
	assert.Equal(t, rev, e.Revision)
	assert.Equal(t, BucketHeartbeat, b.Name())
}

func TestBucket_GetUndecodableIsMiss(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Put(ctx, BucketHeartbeat, "rt-1", []byte("not json"))
	require.NoError(t, err)

	e, err := NewBucket[heartbeat](svc, BucketHeartbeat).Get(ctx, "rt-1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestBucket_GetOrSet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := NewBucket[heartbeat](svc, BucketEphemeral)

	calls := 0
	factory := func(context.Context) (heartbeat, error) {
		calls++
		return heartbeat{RuntimeID: "x"}, nil
	}

	e1, err := b.GetOrSet(ctx, "k", factory)
	require.NoError(t, err)
	e2, err := b.GetOrSet(ctx, "k", factory)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, e1.Value, e2.Value)
}

func TestBucket_WatchDecodeEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := NewBucket[heartbeat](svc, BucketHeartbeat)

	sub, err := b.Watch(ctx, WatchOptions{Key: "rt-1"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = b.Put(ctx, "rt-1", heartbeat{RuntimeID: "rt-1", Seq: 2})
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, "rt-1"))

	v, err := DecodeEvent[heartbeat](recv(t, sub))
	require.NoError(t, err)
	assert.Equal(t, 2, v.Seq)

	v, err = DecodeEvent[heartbeat](recv(t, sub))
	require.NoError(t, err)
	assert.Zero(t, v)
}
