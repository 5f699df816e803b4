package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/repository"
	"github.com/alpinai/skilder/internal/repository/memory"
	"github.com/alpinai/skilder/internal/repository/mocks"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func cheapHash(t *testing.T, plain string) string {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)

	return string(h)
}

type countingVerifier struct {
	mu     sync.Mutex
	hashes []string
}

func (v *countingVerifier) Verify(hash, plain string) bool {
	v.mu.Lock()
	v.hashes = append(v.hashes, hash)
	v.mu.Unlock()

	return VerifyKey(hash, plain)
}

// --- ValidateMasterKey ---

func TestValidateMasterKey_Match(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	ts := db.AddToolset(models.Toolset{Name: "deploy", WorkspaceID: "ws1"})

	require.NoError(t, db.Tokens().Create(ctx, &models.Token{
		Key:         cheapHash(t, "MK_secret"),
		Type:        models.TokenMasterKey,
		WorkspaceID: "ws1",
		ToolsetID:   ts.ID,
		CreatedAt:   testNow,
	}))

	svc, err := New(db.Toolsets(), db.Tokens(), Config{}, nil, WithClock(fixedClock))
	require.NoError(t, err)

	got := svc.ValidateMasterKey(ctx, "MK_secret", "deploy")
	require.NotNil(t, got)
	assert.Equal(t, ts.ID, got.ID)

	assert.Nil(t, svc.ValidateMasterKey(ctx, "MK_wrong", "deploy"))
	assert.Nil(t, svc.ValidateMasterKey(ctx, "MK_secret", "other"))
	assert.Nil(t, svc.ValidateMasterKey(ctx, "", "deploy"))
}

func TestValidateMasterKey_CheapChecksFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	toolsets := mocks.NewMockToolsetRepository(ctrl)
	tokens := mocks.NewMockTokenRepository(ctrl)

	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)
	good := cheapHash(t, "MK_secret")

	toolsets.EXPECT().FindByName(gomock.Any(), "deploy").
		Return(&models.Toolset{ID: "ts1", Name: "deploy", WorkspaceID: "ws1"}, nil)
	tokens.EXPECT().FindByWorkspace(gomock.Any(), "ws1", models.TokenMasterKey).
		Return([]*models.Token{
			{ID: "revoked", Key: "h-revoked", ToolsetID: "ts1", RevokedAt: &past},
			{ID: "expired", Key: "h-expired", ToolsetID: "ts1", ExpiresAt: &past},
			{ID: "foreign", Key: "h-foreign", ToolsetID: "ts2"},
			{ID: "wrong", Key: cheapHash(t, "MK_other"), ToolsetID: "ts1", ExpiresAt: &future},
			{ID: "good", Key: good, ToolsetID: "ts1"},
			{ID: "after", Key: "h-after", ToolsetID: "ts1"},
		}, nil)

	v := &countingVerifier{}
	svc, err := New(toolsets, tokens, Config{}, nil, WithClock(fixedClock), WithKeyVerifier(v.Verify))
	require.NoError(t, err)

	got := svc.ValidateMasterKey(context.Background(), "MK_secret", "deploy")

	require.NotNil(t, got)
	assert.Equal(t, "ts1", got.ID)
	require.Len(t, v.hashes, 2, "only active keys of the toolset are hashed, stopping at the first match")
	assert.Equal(t, good, v.hashes[1])
}

func TestValidateMasterKey_RepositoryErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	toolsets := mocks.NewMockToolsetRepository(ctrl)
	tokens := mocks.NewMockTokenRepository(ctrl)

	toolsets.EXPECT().FindByName(gomock.Any(), "missing").Return(nil, repository.ErrNotFound)
	toolsets.EXPECT().FindByName(gomock.Any(), "broken").Return(nil, errors.New("db down"))
	toolsets.EXPECT().FindByName(gomock.Any(), "deploy").
		Return(&models.Toolset{ID: "ts1", WorkspaceID: "ws1"}, nil)
	tokens.EXPECT().FindByWorkspace(gomock.Any(), "ws1", models.TokenMasterKey).
		Return(nil, errors.New("db down"))

	svc, err := New(toolsets, tokens, Config{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Nil(t, svc.ValidateMasterKey(ctx, "k", "missing"))
	assert.Nil(t, svc.ValidateMasterKey(ctx, "k", "broken"))
	assert.Nil(t, svc.ValidateMasterKey(ctx, "k", "deploy"))
}

// --- GenerateAccessToken / IsTokenValid ---

func TestGenerateAccessToken(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	now := testNow
	svc, err := New(db.Toolsets(), db.Tokens(), Config{}, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	secret, err := svc.GenerateAccessToken(ctx, "rt1", "ts1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, RuntimeTokenPrefix))
	assert.Len(t, secret, len(RuntimeTokenPrefix)+2*runtimeTokenBytes)

	stored, err := db.Tokens().FindByWorkspace(ctx, models.PendingWorkspace, models.TokenRuntimeKey)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	tok := stored[0]
	assert.Equal(t, HashToken(secret), tok.Key)
	assert.Equal(t, "rt1", tok.RuntimeID)
	assert.Equal(t, "ts1", tok.ToolsetID)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, testNow.Add(DefaultAccessTokenTTL), *tok.ExpiresAt)

	assert.True(t, svc.IsTokenValid(ctx, tok.ID))

	now = testNow.Add(DefaultAccessTokenTTL)
	assert.False(t, svc.IsTokenValid(ctx, tok.ID), "expired")

	now = testNow
	require.NoError(t, db.Tokens().Revoke(ctx, tok.ID, testNow))
	assert.False(t, svc.IsTokenValid(ctx, tok.ID), "revoked")

	other, err := svc.GenerateAccessToken(ctx, "rt1", "ts1")
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestGenerateAccessToken_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenRepository(ctrl)
	tokens.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("unique violation on tokens_key"))

	svc, err := New(mocks.NewMockToolsetRepository(ctrl), tokens, Config{}, nil)
	require.NoError(t, err)

	secret, err := svc.GenerateAccessToken(context.Background(), "rt1", "ts1")

	assert.Empty(t, secret)
	require.ErrorIs(t, err, apperrors.ErrAccessTokenFailed)
	assert.Equal(t, "Failed to generate access token", err.Error())
}

func TestIsTokenValid_FailsClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenRepository(ctrl)
	tokens.EXPECT().FindByID(gomock.Any(), "missing").Return(nil, repository.ErrNotFound)
	tokens.EXPECT().FindByID(gomock.Any(), "broken").Return(nil, errors.New("timeout"))

	svc, err := New(mocks.NewMockToolsetRepository(ctrl), tokens, Config{}, nil)
	require.NoError(t, err)

	assert.False(t, svc.IsTokenValid(context.Background(), "missing"))
	assert.False(t, svc.IsTokenValid(context.Background(), "broken"))
}

// --- GenerateNatsJWT ---

func accountSeed(t *testing.T) (string, nkeys.KeyPair) {
	t.Helper()

	kp, err := nkeys.CreateAccount()
	require.NoError(t, err)

	seed, err := kp.Seed()
	require.NoError(t, err)

	return string(seed), kp
}

func decodeSegment(t *testing.T, seg string, v any) {
	t.Helper()

	raw, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestGenerateNatsJWT(t *testing.T) {
	seed, kp := accountSeed(t)

	svc, err := New(nil, nil, Config{SigningSeed: seed}, nil, WithClock(fixedClock))
	require.NoError(t, err)

	token, err := svc.GenerateNatsJWT("ts1", "rt1", "ws1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	var header map[string]string
	decodeSegment(t, parts[0], &header)
	assert.Equal(t, map[string]string{"typ": "JWT", "alg": "ed25519-nkey"}, header)

	var claims NatsClaims
	decodeSegment(t, parts[1], &claims)

	pub, err := kp.PublicKey()
	require.NoError(t, err)

	assert.Equal(t, pub, claims.Issuer)
	assert.Equal(t, "ts1", claims.ToolsetID)
	assert.Equal(t, "ws1", claims.WorkspaceID)
	assert.Equal(t, "rt1", claims.Subject)
	assert.Equal(t, "user", claims.Nats.Type)
	assert.Equal(t, []string{"toolset.ts1.*"}, claims.Nats.Pub.Allow)
	assert.Equal(t, []string{"toolset.ts1.*"}, claims.Nats.Sub.Allow)
	assert.Equal(t, testNow.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, testNow.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	assert.NoError(t, kp.Verify([]byte(parts[0]+"."+parts[1]), sig))
}

func TestGenerateNatsJWT_ParsesWithPublicKey(t *testing.T) {
	seed, kp := accountSeed(t)

	svc, err := New(nil, nil, Config{SigningSeed: seed}, nil, WithClock(fixedClock))
	require.NoError(t, err)

	token, err := svc.GenerateNatsJWT("ts1", "rt1", "ws1")
	require.NoError(t, err)

	pub, err := kp.PublicKey()
	require.NoError(t, err)
	verifier, err := nkeys.FromPublicKey(pub)
	require.NoError(t, err)

	keyFunc := func(*jwt.Token) (any, error) { return verifier, nil }

	var claims NatsClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, keyFunc,
		jwt.WithValidMethods([]string{SigningMethodNkey.Alg()}),
		jwt.WithTimeFunc(fixedClock),
		jwt.WithIssuer(pub),
	)
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "ts1", claims.ToolsetID)

	other, err := nkeys.CreateAccount()
	require.NoError(t, err)
	_, err = jwt.ParseWithClaims(token, &NatsClaims{}, func(*jwt.Token) (any, error) { return other, nil },
		jwt.WithTimeFunc(fixedClock))
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = jwt.ParseWithClaims(token, &NatsClaims{}, keyFunc,
		jwt.WithTimeFunc(func() time.Time { return testNow.Add(2 * time.Hour) }))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestGenerateNatsJWT_UniqueJTI(t *testing.T) {
	seed, _ := accountSeed(t)

	svc, err := New(nil, nil, Config{SigningSeed: seed}, nil, WithClock(fixedClock))
	require.NoError(t, err)

	a, err := svc.GenerateNatsJWT("ts1", "rt1", "ws1")
	require.NoError(t, err)
	b, err := svc.GenerateNatsJWT("ts1", "rt1", "ws1")
	require.NoError(t, err)

	var ca, cb NatsClaims
	decodeSegment(t, strings.Split(a, ".")[1], &ca)
	decodeSegment(t, strings.Split(b, ".")[1], &cb)

	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestGenerateNatsJWT_NoSeed(t *testing.T) {
	svc, err := New(nil, nil, Config{}, nil)
	require.NoError(t, err)

	_, err = svc.GenerateNatsJWT("ts1", "rt1", "ws1")
	assert.ErrorIs(t, err, apperrors.ErrSigningSeedMissing)
}

func TestNew_RejectsNonAccountSeed(t *testing.T) {
	user, err := nkeys.CreateUser()
	require.NoError(t, err)
	seed, err := user.Seed()
	require.NoError(t, err)

	_, err = New(nil, nil, Config{SigningSeed: string(seed)}, nil)
	assert.Error(t, err)

	_, err = New(nil, nil, Config{SigningSeed: "garbage"}, nil)
	assert.Error(t, err)
}
