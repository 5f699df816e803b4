// Package memory implements the repository interfaces in process memory.
// It backs single-node development runs and HTTP tests; nothing is
// persisted.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/repository"
	"github.com/google/uuid"
)

// DB holds every in-memory table behind a single lock.
type DB struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	sessions   map[string]*models.Session
	identities map[string]*models.IdentityKey // key hash -> record
	systems    map[string]*models.System
	workspaces map[string]*models.Workspace
	runtimes   map[string]*models.Runtime
	skills     map[string]*models.Skill
	toolsets   map[string]*models.Toolset
	tokens     map[string]*models.Token
}

// New returns an empty database.
func New() *DB {
	return &DB{
		users:      make(map[string]*models.User),
		sessions:   make(map[string]*models.Session),
		identities: make(map[string]*models.IdentityKey),
		systems:    make(map[string]*models.System),
		workspaces: make(map[string]*models.Workspace),
		runtimes:   make(map[string]*models.Runtime),
		skills:     make(map[string]*models.Skill),
		toolsets:   make(map[string]*models.Toolset),
		tokens:     make(map[string]*models.Token),
	}
}

// HashKey is the lookup digest for identity keys.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, repository.ErrNotFound)
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func newID(id string) string {
	if id != "" {
		return id
	}

	return uuid.NewString()
}

// Users returns the user table.
func (db *DB) Users() *Users { return (*Users)(db) }

// Sessions returns the session table.
func (db *DB) Sessions() *Sessions { return (*Sessions)(db) }

// Identities returns the identity key table.
func (db *DB) Identities() *Identities { return (*Identities)(db) }

// Systems returns the system table.
func (db *DB) Systems() *Systems { return (*Systems)(db) }

// Workspaces returns the workspace table.
func (db *DB) Workspaces() *Workspaces { return (*Workspaces)(db) }

// Runtimes returns the runtime table.
func (db *DB) Runtimes() *Runtimes { return (*Runtimes)(db) }

// Skills returns the skill table.
func (db *DB) Skills() *Skills { return (*Skills)(db) }

// Toolsets returns the toolset table.
func (db *DB) Toolsets() *Toolsets { return (*Toolsets)(db) }

// Tokens returns the token table.
func (db *DB) Tokens() *Tokens { return (*Tokens)(db) }

// AddSystem seeds a system.
func (db *DB) AddSystem(s models.System) *models.System {
	db.mu.Lock()
	defer db.mu.Unlock()

	s.ID = newID(s.ID)
	db.systems[s.ID] = &s

	return clone(&s)
}

// AddWorkspace seeds a workspace.
func (db *DB) AddWorkspace(w models.Workspace) *models.Workspace {
	db.mu.Lock()
	defer db.mu.Unlock()

	w.ID = newID(w.ID)
	db.workspaces[w.ID] = &w

	return clone(&w)
}

// AddToolset seeds a toolset.
func (db *DB) AddToolset(t models.Toolset) *models.Toolset {
	db.mu.Lock()
	defer db.mu.Unlock()

	t.ID = newID(t.ID)
	db.toolsets[t.ID] = &t

	return clone(&t)
}

// --- users ---

// Users implements repository.UserRepository.
type Users DB

var _ repository.UserRepository = (*Users)(nil)

func (u *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	for _, user := range u.users {
		if strings.EqualFold(user.Email, email) {
			return clone(user), nil
		}
	}

	return nil, notFound("user", email)
}

func (u *Users) FindByID(_ context.Context, id string) (*models.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.users[id]
	if !ok {
		return nil, notFound("user", id)
	}

	return clone(user), nil
}

func (u *Users) Create(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, existing := range u.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return fmt.Errorf("user %q: %w", user.Email, repository.ErrConflict)
		}
	}

	user.ID = newID(user.ID)
	u.users[user.ID] = clone(user)

	return nil
}

func (u *Users) Update(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.users[user.ID]; !ok {
		return notFound("user", user.ID)
	}

	u.users[user.ID] = clone(user)

	return nil
}

// --- sessions ---

// Sessions implements repository.SessionRepository.
type Sessions DB

var _ repository.SessionRepository = (*Sessions)(nil)

func (s *Sessions) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = newID(session.ID)
	s.sessions[session.ID] = clone(session)

	return nil
}

func (s *Sessions) FindByRefreshToken(_ context.Context, tokenHash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.RefreshToken == tokenHash {
			return clone(session), nil
		}
	}

	return nil, notFound("session", "")
}

func (s *Sessions) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return notFound("session", id)
	}

	session.LastUsedAt = at

	return nil
}

func (s *Sessions) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return notFound("session", id)
	}

	session.IsActive = false

	return nil
}

// --- identity keys ---

// Identities implements repository.IdentityRepository. The Key field of
// stored records is the hash of the secret.
type Identities DB

var _ repository.IdentityRepository = (*Identities)(nil)

func (i *Identities) FindByKey(_ context.Context, key string) (*models.IdentityKey, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rec, ok := i.identities[HashKey(key)]
	if !ok {
		return nil, notFound("identity key", "")
	}

	return clone(rec), nil
}

// Create stores key. Its Key field holds the secret on input and is
// replaced by the hash.
func (i *Identities) Create(_ context.Context, key *models.IdentityKey) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	hash := HashKey(key.Key)
	if _, ok := i.identities[hash]; ok {
		return fmt.Errorf("identity key: %w", repository.ErrConflict)
	}

	key.ID = newID(key.ID)
	key.Key = hash
	i.identities[hash] = clone(key)

	return nil
}

// --- systems / workspaces ---

// Systems implements repository.SystemRepository.
type Systems DB

var _ repository.SystemRepository = (*Systems)(nil)

func (s *Systems) FindByID(_ context.Context, id string) (*models.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sys, ok := s.systems[id]
	if !ok {
		return nil, notFound("system", id)
	}

	return clone(sys), nil
}

// Workspaces implements repository.WorkspaceRepository.
type Workspaces DB

var _ repository.WorkspaceRepository = (*Workspaces)(nil)

func (w *Workspaces) FindByID(_ context.Context, id string) (*models.Workspace, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ws, ok := w.workspaces[id]
	if !ok {
		return nil, notFound("workspace", id)
	}

	return clone(ws), nil
}

// --- runtimes ---

// Runtimes implements repository.RuntimeRepository.
type Runtimes DB

var _ repository.RuntimeRepository = (*Runtimes)(nil)

func (r *Runtimes) FindByID(_ context.Context, id string) (*models.Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.runtimes[id]
	if !ok {
		return nil, notFound("runtime", id)
	}

	return cloneRuntime(rt), nil
}

func (r *Runtimes) FindByName(_ context.Context, scope models.OwnerScope, name string) (*models.Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rt := r.byName(scope, name); rt != nil {
		return cloneRuntime(rt), nil
	}

	return nil, notFound("runtime", name)
}

func (r *Runtimes) byName(scope models.OwnerScope, name string) *models.Runtime {
	for _, rt := range r.runtimes {
		if rt.Name == name && rt.SystemID == scope.SystemID && rt.WorkspaceID == scope.WorkspaceID {
			return rt
		}
	}

	return nil
}

func (r *Runtimes) Create(_ context.Context, rt *models.Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope := models.OwnerScope{SystemID: rt.SystemID, WorkspaceID: rt.WorkspaceID}
	if r.byName(scope, rt.Name) != nil {
		return fmt.Errorf("runtime %q: %w", rt.Name, repository.ErrConflict)
	}

	rt.ID = newID(rt.ID)
	r.runtimes[rt.ID] = cloneRuntime(rt)

	return nil
}

func (r *Runtimes) SetRoots(_ context.Context, id string, roots []models.Root) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.runtimes[id]
	if !ok {
		return notFound("runtime", id)
	}

	rt.Roots = slices.Clone(roots)

	return nil
}

func cloneRuntime(rt *models.Runtime) *models.Runtime {
	c := *rt
	c.Roots = slices.Clone(rt.Roots)

	return &c
}

// --- skills ---

// Skills implements repository.SkillRepository.
type Skills DB

var _ repository.SkillRepository = (*Skills)(nil)

func (s *Skills) FindByID(_ context.Context, id string) (*models.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.skills[id]
	if !ok {
		return nil, notFound("skill", id)
	}

	return clone(sk), nil
}

func (s *Skills) FindByName(_ context.Context, workspaceID, name string) (*models.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sk := range s.skills {
		if sk.WorkspaceID == workspaceID && sk.Name == name {
			return clone(sk), nil
		}
	}

	return nil, notFound("skill", name)
}

func (s *Skills) Create(_ context.Context, sk *models.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.skills {
		if existing.WorkspaceID == sk.WorkspaceID && existing.Name == sk.Name {
			return fmt.Errorf("skill %q: %w", sk.Name, repository.ErrConflict)
		}
	}

	sk.ID = newID(sk.ID)
	s.skills[sk.ID] = clone(sk)

	return nil
}

// --- toolsets ---

// Toolsets implements repository.ToolsetRepository.
type Toolsets DB

var _ repository.ToolsetRepository = (*Toolsets)(nil)

func (t *Toolsets) FindByID(_ context.Context, id string) (*models.Toolset, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ts, ok := t.toolsets[id]
	if !ok {
		return nil, notFound("toolset", id)
	}

	return clone(ts), nil
}

func (t *Toolsets) FindByName(_ context.Context, name string) (*models.Toolset, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ts := range t.toolsets {
		if ts.Name == name {
			return clone(ts), nil
		}
	}

	return nil, notFound("toolset", name)
}

// --- tokens ---

// Tokens implements repository.TokenRepository.
type Tokens DB

var _ repository.TokenRepository = (*Tokens)(nil)

func (t *Tokens) FindByID(_ context.Context, id string) (*models.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tok, ok := t.tokens[id]
	if !ok {
		return nil, notFound("token", id)
	}

	return clone(tok), nil
}

func (t *Tokens) FindByWorkspace(_ context.Context, workspaceID string, typ models.TokenType) ([]*models.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*models.Token
	for _, tok := range t.tokens {
		if tok.WorkspaceID == workspaceID && tok.Type == typ {
			out = append(out, clone(tok))
		}
	}

	slices.SortFunc(out, func(a, b *models.Token) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return out, nil
}

func (t *Tokens) Create(_ context.Context, tok *models.Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok.ID = newID(tok.ID)
	if _, ok := t.tokens[tok.ID]; ok {
		return fmt.Errorf("token %q: %w", tok.ID, repository.ErrConflict)
	}

	t.tokens[tok.ID] = clone(tok)

	return nil
}

func (t *Tokens) Revoke(_ context.Context, id string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, ok := t.tokens[id]
	if !ok {
		return notFound("token", id)
	}

	tok.RevokedAt = &at

	return nil
}
