// Package repository declares the persistence boundary. Services depend
// on these interfaces only; lookups that find nothing return ErrNotFound
// (possibly wrapped) and never a nil record with a nil error.
package repository

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks -source=repository.go

import (
	"context"
	"errors"
	"time"

	"github.com/alpinai/skilder/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create collides with an existing
	// record on a unique field.
	ErrConflict = errors.New("already exists")
)

// UserRepository stores dashboard users.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Update persists the login bookkeeping fields of user.
	Update(ctx context.Context, user *models.User) error
}

// SessionRepository stores refresh-token sessions. Refresh tokens are
// passed in already hashed.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByRefreshToken(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
}

// IdentityRepository resolves presented keys. Keys are matched on their
// hash; implementations never store the secret itself.
type IdentityRepository interface {
	FindByKey(ctx context.Context, key string) (*models.IdentityKey, error)
	Create(ctx context.Context, key *models.IdentityKey) error
}

// SystemRepository stores the platform owner.
type SystemRepository interface {
	FindByID(ctx context.Context, id string) (*models.System, error)
}

// WorkspaceRepository stores tenants.
type WorkspaceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Workspace, error)
}

// RuntimeRepository stores runtimes. Names are unique per owner scope;
// Create returns ErrConflict when the name is taken.
type RuntimeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Runtime, error)
	FindByName(ctx context.Context, scope models.OwnerScope, name string) (*models.Runtime, error)
	Create(ctx context.Context, runtime *models.Runtime) error
	SetRoots(ctx context.Context, id string, roots []models.Root) error
}

// SkillRepository stores skills. Names are unique per workspace; Create
// returns ErrConflict when the name is taken.
type SkillRepository interface {
	FindByID(ctx context.Context, id string) (*models.Skill, error)
	FindByName(ctx context.Context, workspaceID, name string) (*models.Skill, error)
	Create(ctx context.Context, skill *models.Skill) error
}

// ToolsetRepository stores toolsets.
type ToolsetRepository interface {
	FindByID(ctx context.Context, id string) (*models.Toolset, error)
	FindByName(ctx context.Context, name string) (*models.Toolset, error)
}

// TokenRepository stores master and runtime keys.
type TokenRepository interface {
	FindByID(ctx context.Context, id string) (*models.Token, error)
	FindByWorkspace(ctx context.Context, workspaceID string, typ models.TokenType) ([]*models.Token, error)
	Create(ctx context.Context, token *models.Token) error
	Revoke(ctx context.Context, id string, at time.Time) error
}
