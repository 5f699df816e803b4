package cache

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_AllKeys(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	rev, err := svc.Put(ctx, BucketEphemeral, "a", []byte("1"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, BucketEphemeral, "a"))

	ev := recv(t, sub)
	assert.Equal(t, "a", ev.Key)
	assert.Equal(t, OpPut, ev.Operation)
	assert.Equal(t, []byte("1"), ev.Value)
	assert.Equal(t, rev, ev.Revision)
	assert.False(t, ev.Timestamp.IsZero())

	ev = recv(t, sub)
	assert.Equal(t, OpDelete, ev.Operation)
}

func TestWatch_KeyFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{Key: "b"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = svc.Put(ctx, BucketEphemeral, "a", []byte("1"))
	require.NoError(t, err)
	_, err = svc.Put(ctx, BucketEphemeral, "b", []byte("2"))
	require.NoError(t, err)

	ev := recv(t, sub)
	assert.Equal(t, "b", ev.Key)
}

func TestWatch_PatternFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{KeyPattern: "runtime.*"})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = svc.Put(ctx, BucketEphemeral, "skill.1", []byte("x"))
	require.NoError(t, err)
	_, err = svc.Put(ctx, BucketEphemeral, "runtime.1", []byte("y"))
	require.NoError(t, err)

	ev := recv(t, sub)
	assert.Equal(t, "runtime.1", ev.Key)
}

func TestWatch_RejectsKeyAndPattern(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Watch(context.Background(), BucketEphemeral, WatchOptions{Key: "a", KeyPattern: "a*"})
	assert.Error(t, err)
}

func TestWatch_RejectsBadPattern(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Watch(context.Background(), BucketEphemeral, WatchOptions{KeyPattern: "[x"})
	assert.Error(t, err)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{})
	require.NoError(t, err)

	_, err = svc.Put(ctx, BucketEphemeral, "a", []byte("1"))
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok, "no events after unsubscribe")

	_, err = svc.Put(ctx, BucketEphemeral, "b", []byte("1"))
	require.NoError(t, err)
}

func TestDrain_ReturnsPending(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		svc := New(store, nil)
		ctx := context.Background()
		require.NoError(t, svc.Start(ctx, "test"))
		defer svc.Stop(ctx, "test")

		sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{})
		require.NoError(t, err)

		for _, k := range []string{"a", "b"} {
			_, err := svc.Put(ctx, BucketEphemeral, k, []byte("1"))
			require.NoError(t, err)
		}
		synctest.Wait()

		pending := sub.Drain()
		require.Len(t, pending, 2)
		assert.Equal(t, "a", pending[0].Key)
		assert.Equal(t, "b", pending[1].Key)

		assert.Empty(t, sub.Drain())
	})
}

func TestWatch_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		svc := New(store, nil)
		ctx := context.Background()
		require.NoError(t, svc.Start(ctx, "test"))
		defer svc.Stop(ctx, "test")

		sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{Timeout: 5 * time.Second})
		require.NoError(t, err)

		time.Sleep(3 * time.Second)
		_, err = svc.Put(ctx, BucketEphemeral, "a", []byte("1"))
		require.NoError(t, err)
		synctest.Wait()

		ev := <-sub.Events()
		assert.Equal(t, "a", ev.Key)

		// The event restarted the window.
		time.Sleep(4 * time.Second)
		synctest.Wait()
		select {
		case <-sub.Done():
			t.Fatal("subscription ended before its window elapsed")
		default:
		}

		time.Sleep(2 * time.Second)
		synctest.Wait()

		_, ok := <-sub.Events()
		assert.False(t, ok)
	})
}

func TestWatch_ContextCancelEnds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{})
	require.NoError(t, err)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
}

func TestStop_EndsSubscriptions(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	svc := New(store, nil)
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, "test"))

	sub, err := svc.Watch(ctx, BucketEphemeral, WatchOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Stop(ctx, "test"))

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestWatch_EmitsExpire(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		svc := New(store, nil, WithBuckets(BucketConfig{Name: "hb", TTL: 10 * time.Second}))
		ctx := context.Background()
		require.NoError(t, svc.Start(ctx, "test"))
		defer svc.Stop(ctx, "test")

		_, err := svc.Put(ctx, "hb", "agent", []byte("1"))
		require.NoError(t, err)

		sub, err := svc.Watch(ctx, "hb", WatchOptions{})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		time.Sleep(12 * time.Second)
		synctest.Wait()

		ev := <-sub.Events()
		assert.Equal(t, "agent", ev.Key)
		assert.Equal(t, OpExpire, ev.Operation)
	})
}
