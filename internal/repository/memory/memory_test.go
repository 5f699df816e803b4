package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers(t *testing.T) {
	db := New()
	ctx := context.Background()

	u := &models.User{Email: "Ada@example.com", PasswordHash: "h"}
	require.NoError(t, db.Users().Create(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := db.Users().FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	err = db.Users().Create(ctx, &models.User{Email: "ADA@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got.FailedLoginAttempts = 3
	require.NoError(t, db.Users().Update(ctx, got))

	again, err := db.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.FailedLoginAttempts)

	_, err = db.Users().FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	db := New()
	ctx := context.Background()

	u := &models.User{Email: "a@example.com"}
	require.NoError(t, db.Users().Create(ctx, u))

	got, err := db.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	got.Email = "changed@example.com"

	again, err := db.Users().FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again.Email)
}

func TestSessions(t *testing.T) {
	db := New()
	ctx := context.Background()

	s := &models.Session{UserID: "u1", RefreshToken: "hash", IsActive: true}
	require.NoError(t, db.Sessions().Create(ctx, s))

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Sessions().Touch(ctx, s.ID, at))
	require.NoError(t, db.Sessions().Deactivate(ctx, s.ID))

	got, err := db.Sessions().FindByRefreshToken(ctx, "hash")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, at, got.LastUsedAt)

	_, err = db.Sessions().FindByRefreshToken(ctx, "other")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIdentities_HashOnly(t *testing.T) {
	db := New()
	ctx := context.Background()

	k := &models.IdentityKey{Key: "WSK_secret", Nature: models.NatureWorkspace, RelatedID: "ws1"}
	require.NoError(t, db.Identities().Create(ctx, k))
	assert.Equal(t, HashKey("WSK_secret"), k.Key)

	got, err := db.Identities().FindByKey(ctx, "WSK_secret")
	require.NoError(t, err)
	assert.Equal(t, "ws1", got.RelatedID)
	assert.NotContains(t, got.Key, "secret")

	_, err = db.Identities().FindByKey(ctx, "WSK_wrong")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = db.Identities().Create(ctx, &models.IdentityKey{Key: "WSK_secret"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestRuntimes_UniquePerScope(t *testing.T) {
	db := New()
	ctx := context.Background()

	rt := &models.Runtime{Name: "edge-1", WorkspaceID: "ws1"}
	require.NoError(t, db.Runtimes().Create(ctx, rt))

	err := db.Runtimes().Create(ctx, &models.Runtime{Name: "edge-1", WorkspaceID: "ws1"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, db.Runtimes().Create(ctx, &models.Runtime{Name: "edge-1", SystemID: "sys"}))

	got, err := db.Runtimes().FindByName(ctx, models.OwnerScope{WorkspaceID: "ws1"}, "edge-1")
	require.NoError(t, err)
	assert.Equal(t, rt.ID, got.ID)

	roots := []models.Root{{ID: "r1", Key: "/src"}}
	require.NoError(t, db.Runtimes().SetRoots(ctx, rt.ID, roots))
	roots[0].Key = "mutated"

	got, err = db.Runtimes().FindByID(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, "/src", got.Roots[0].Key)
}

func TestSkills(t *testing.T) {
	db := New()
	ctx := context.Background()

	sk := &models.Skill{Name: "search", WorkspaceID: "ws1"}
	require.NoError(t, db.Skills().Create(ctx, sk))

	got, err := db.Skills().FindByName(ctx, "ws1", "search")
	require.NoError(t, err)
	assert.Equal(t, sk.ID, got.ID)

	_, err = db.Skills().FindByName(ctx, "ws2", "search")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokens(t *testing.T) {
	db := New()
	ctx := context.Background()
	now := time.Now()

	a := &models.Token{Type: models.TokenMasterKey, WorkspaceID: "ws1", CreatedAt: now}
	b := &models.Token{Type: models.TokenMasterKey, WorkspaceID: "ws1", CreatedAt: now.Add(time.Second)}
	c := &models.Token{Type: models.TokenRuntimeKey, WorkspaceID: "ws1", CreatedAt: now}

	for _, tok := range []*models.Token{b, a, c} {
		require.NoError(t, db.Tokens().Create(ctx, tok))
	}

	got, err := db.Tokens().FindByWorkspace(ctx, "ws1", models.TokenMasterKey)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)

	require.NoError(t, db.Tokens().Revoke(ctx, a.ID, now))
	tok, err := db.Tokens().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, tok.Active(now))
}

func TestSeeds(t *testing.T) {
	db := New()
	ctx := context.Background()

	ws := db.AddWorkspace(models.Workspace{Name: "acme"})
	sys := db.AddSystem(models.System{ID: "sys", Name: "platform"})
	ts := db.AddToolset(models.Toolset{Name: "default", WorkspaceID: ws.ID})

	_, err := db.Workspaces().FindByID(ctx, ws.ID)
	assert.NoError(t, err)
	_, err = db.Systems().FindByID(ctx, sys.ID)
	assert.NoError(t, err)
	got, err := db.Toolsets().FindByName(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, ts.ID, got.ID)
}
