package oauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "an oauth state secret of 32+ chars"

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newCache(t *testing.T) *cache.Service {
	t.Helper()

	store := cache.NewMemoryStore()
	svc := cache.New(store, nil)
	require.NoError(t, svc.Start(context.Background(), "test"))

	t.Cleanup(func() {
		_ = svc.Stop(context.Background(), "test")
		_ = store.Close()
	})

	return svc
}

func newService(t *testing.T, nonces Nonces) (*Service, *clock) {
	t.Helper()

	clk := &clock{t: testNow}
	svc, err := New(testSecret, nonces, nil, WithClock(clk.Now))
	require.NoError(t, err)

	return svc, clk
}

func generate(t *testing.T, svc *Service) string {
	t.Helper()

	state, err := svc.GenerateState("u1", "ws1", "github", "https://app.example.com/cb", []string{"repo", "read:user"})
	require.NoError(t, err)

	return state
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := New("short", newCache(t), nil)
	assert.ErrorIs(t, err, apperrors.ErrSecretTooShort)
}

func TestGenerateState_URLSafe(t *testing.T) {
	svc, _ := newService(t, newCache(t))

	for range 50 {
		state := generate(t, svc)
		assert.NotContains(t, state, "+")
		assert.NotContains(t, state, "/")
		assert.NotContains(t, state, "=")
	}
}

func TestValidateState_RoundTrip(t *testing.T) {
	svc, _ := newService(t, newCache(t))

	payload := svc.ValidateState(context.Background(), generate(t, svc))

	require.NotNil(t, payload)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "ws1", payload.WorkspaceID)
	assert.Equal(t, "github", payload.Provider)
	assert.Equal(t, "https://app.example.com/cb", payload.RedirectURI)
	assert.Equal(t, []string{"repo", "read:user"}, payload.Scopes)
	assert.Equal(t, testNow.UnixMilli(), payload.CreatedAt)
	assert.Len(t, payload.Nonce, 2*nonceBytes)
}

func TestValidateState_OnlyOnce(t *testing.T) {
	c := newCache(t)
	svc, _ := newService(t, c)
	state := generate(t, svc)

	require.NotNil(t, svc.ValidateState(context.Background(), state))
	assert.Nil(t, svc.ValidateState(context.Background(), state))
	assert.Nil(t, svc.ValidateState(context.Background(), state))
}

func TestValidateState_ReplayAcrossInstances(t *testing.T) {
	c := newCache(t)
	a, _ := newService(t, c)
	b, _ := newService(t, c)

	state := generate(t, a)

	require.NotNil(t, b.ValidateState(context.Background(), state))
	assert.Nil(t, a.ValidateState(context.Background(), state))
}

func TestValidateState_ConcurrentSingleWinner(t *testing.T) {
	svc, _ := newService(t, newCache(t))
	state := generate(t, svc)

	var wins atomic.Int32
	var wg sync.WaitGroup

	for range 16 {
		wg.Go(func() {
			if svc.ValidateState(context.Background(), state) != nil {
				wins.Add(1)
			}
		})
	}

	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestValidateState_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name  string
		after time.Duration
		valid bool
	}{
		{"fresh", 0, true},
		{"just inside", StateLifetime - time.Millisecond, true},
		{"exactly at lifetime", StateLifetime, true},
		{"just outside", StateLifetime + time.Millisecond, false},
		{"long expired", time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, clk := newService(t, newCache(t))
			state := generate(t, svc)

			clk.Set(testNow.Add(tt.after))

			got := svc.ValidateState(context.Background(), state)
			assert.Equal(t, tt.valid, got != nil)
		})
	}
}

func TestValidateState_ExpiredDoesNotBurnNonce(t *testing.T) {
	c := newCache(t)
	svc, clk := newService(t, c)
	state := generate(t, svc)

	clk.Set(testNow.Add(StateLifetime + time.Millisecond))
	require.Nil(t, svc.ValidateState(context.Background(), state))

	keys, err := c.Keys(context.Background(), cache.BucketOAuthNonce, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestValidateState_Malformed(t *testing.T) {
	svc, _ := newService(t, newCache(t))
	state := generate(t, svc)

	other, err := New("a completely different secret value!", newCache(t), nil)
	require.NoError(t, err)
	foreign, err := other.GenerateState("u1", "ws1", "github", "", nil)
	require.NoError(t, err)

	flipped := []byte(state)
	if flipped[20] == 'A' {
		flipped[20] = 'B'
	} else {
		flipped[20] = 'A'
	}

	tests := map[string]string{
		"empty":        "",
		"not base64":   "!!!!",
		"too short":    "AAAA",
		"tampered":     string(flipped),
		"truncated":    state[:len(state)-4],
		"other secret": foreign,
		"padded":       state + "==",
		"std alphabet": strings.NewReplacer("-", "+", "_", "/").Replace(state) + "+",
	}

	for name, s := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, svc.ValidateState(context.Background(), s))
		})
	}
}

type brokenNonces struct {
	getErr   error
	claimErr error
	entry    *cache.RawEntry
	claimed  bool
}

func (b *brokenNonces) Get(context.Context, string, string) (*cache.RawEntry, error) {
	return b.entry, b.getErr
}

func (b *brokenNonces) Claim(context.Context, string, string, []byte) (bool, error) {
	return b.claimed, b.claimErr
}

func TestValidateState_FailsClosed(t *testing.T) {
	tests := map[string]*brokenNonces{
		"get error":    {getErr: errors.New("nats: timeout")},
		"claim error":  {claimErr: errors.New("nats: timeout")},
		"lost claim":   {claimed: false},
		"nonce exists": {entry: &cache.RawEntry{Key: "n"}, claimed: true},
	}

	for name, nonces := range tests {
		t.Run(name, func(t *testing.T) {
			svc, _ := newService(t, nonces)
			assert.Nil(t, svc.ValidateState(context.Background(), generate(t, svc)))
		})
	}
}
