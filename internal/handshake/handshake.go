// Package handshake authenticates remote runtimes and skills. A peer
// presents a key and the nature it wants to act as; the service resolves
// the key, finds or creates the matching identity, and answers with that
// identity or a single opaque failure code.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/metrics"
	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/ratelimit"
	"github.com/alpinai/skilder/internal/repository"
)

// Limiter is the attempt gate consulted before any key resolution.
type Limiter interface {
	CheckKeyAttempt(ctx context.Context, keyPrefix string) bool
	CheckIPAttempt(ctx context.Context, ip string) bool
	RecordSuccessfulAttempt(ctx context.Context, keyPrefix string)
	RecordFailedAttempt(ctx context.Context, keyPrefix, ip string)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Identities repository.IdentityRepository
	Systems    repository.SystemRepository
	Workspaces repository.WorkspaceRepository
	Runtimes   repository.RuntimeRepository
	Skills     repository.SkillRepository
	Limiter    Limiter
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Event is passed to callbacks after a successful handshake. Exactly one
// of Runtime and Skill is set, matching Nature.
type Event struct {
	Nature   models.Nature
	Runtime  *models.Runtime
	Skill    *models.Skill
	PID      *int
	HostIP   string
	Hostname string
}

// Callback observes successful handshakes.
type Callback func(ctx context.Context, ev Event)

// CallbackID identifies a registered callback for removal.
type CallbackID uint64

type registration struct {
	id CallbackID
	fn Callback
}

// Service resolves handshake requests.
type Service struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	nextID    CallbackID
	callbacks map[models.Nature][]registration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for key expiry and creation
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:      deps,
		logger:    logging.Component(deps.Logger, "handshake"),
		now:       time.Now,
		callbacks: make(map[models.Nature][]registration),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OnHandshake registers cb for successful handshakes of nature.
// Callbacks for one nature run in registration order.
func (s *Service) OnHandshake(nature models.Nature, cb Callback) CallbackID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.callbacks[nature] = append(s.callbacks[nature], registration{id: s.nextID, fn: cb})

	return s.nextID
}

// OffHandshake removes a callback. Handshakes already dispatching may
// still call it once.
func (s *Service) OffHandshake(nature models.Nature, id CallbackID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks[nature] = slices.DeleteFunc(s.callbacks[nature], func(r registration) bool {
		return r.id == id
	})
}

func (s *Service) snapshot(nature models.Nature) []registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.callbacks[nature])
}

// resolved is the identity a request maps to.
type resolved struct {
	runtime *models.Runtime
	skill   *models.Skill
}

// Handshake answers one request. It never returns an error; failures are
// reported in the response as AUTHENTICATION_FAILED.
func (s *Service) Handshake(ctx context.Context, req models.HandshakeRequest) models.HandshakeResponse {
	prefix := ratelimit.KeyPrefix(req.Key)

	if !s.deps.Limiter.CheckKeyAttempt(ctx, prefix) || !s.deps.Limiter.CheckIPAttempt(ctx, req.HostIP) {
		return s.refuse(req, prefix, fail(RateLimited, nil))
	}

	res, f := s.resolve(ctx, req)
	if f != nil {
		s.deps.Limiter.RecordFailedAttempt(ctx, prefix, req.HostIP)
		return s.refuse(req, prefix, f)
	}

	s.deps.Limiter.RecordSuccessfulAttempt(ctx, prefix)

	ev := Event{
		Nature:   req.Nature,
		Runtime:  res.runtime,
		Skill:    res.skill,
		PID:      req.PID,
		HostIP:   req.HostIP,
		Hostname: req.Hostname,
	}

	resp := models.HandshakeResponse{Nature: req.Nature}

	switch {
	case res.runtime != nil:
		if len(req.Roots) > 0 {
			if err := s.deps.Runtimes.SetRoots(ctx, res.runtime.ID, req.Roots); err != nil {
				s.logger.Warn("storing runtime roots failed",
					slog.String("runtime_id", res.runtime.ID),
					slog.String("error", err.Error()),
				)
			} else {
				res.runtime.Roots = req.Roots
			}
		}

		resp.ID = res.runtime.ID
		resp.Name = res.runtime.Name
		resp.WorkspaceID = optional(res.runtime.WorkspaceID)
	case res.skill != nil:
		resp.ID = res.skill.ID
		resp.Name = res.skill.Name
		resp.WorkspaceID = optional(res.skill.WorkspaceID)
	}

	for _, r := range s.snapshot(req.Nature) {
		r.fn(ctx, ev)
	}

	s.deps.Metrics.Handshake(string(req.Nature), "success")
	s.logger.Info("handshake accepted",
		slog.String("nature", string(req.Nature)),
		slog.String("id", resp.ID),
		slog.String("key_prefix", prefix),
		slog.String("host_ip", req.HostIP),
	)

	return resp
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func (s *Service) refuse(req models.HandshakeRequest, prefix string, f *Failure) models.HandshakeResponse {
	attrs := []any{
		slog.String("nature", string(req.Nature)),
		slog.String("reason", f.Kind.String()),
		slog.String("key_prefix", prefix),
		slog.String("host_ip", req.HostIP),
	}
	if f.Err != nil {
		attrs = append(attrs, slog.String("error", f.Err.Error()))
	}

	s.logger.Warn("handshake refused", attrs...)
	s.deps.Metrics.Handshake(string(req.Nature), f.Kind.String())

	return models.HandshakeResponse{Nature: req.Nature, Error: f.External()}
}

func (s *Service) resolve(ctx context.Context, req models.HandshakeRequest) (resolved, *Failure) {
	if req.Key == "" {
		return resolved{}, fail(KeyNotFound, errors.New("empty key"))
	}

	if req.Nature != models.NatureRuntime && req.Nature != models.NatureSkill {
		return resolved{}, fail(KeyNotFound, fmt.Errorf("unsupported nature %q", req.Nature))
	}

	key, err := s.deps.Identities.FindByKey(ctx, req.Key)
	if err != nil {
		return resolved{}, fail(KeyNotFound, err)
	}

	if key.Expired(s.now()) {
		return resolved{}, fail(KeyExpired, fmt.Errorf("key %s expired", key.ID))
	}

	switch key.Nature {
	case models.NatureSystem:
		return s.resolveSystemOwned(ctx, req, key)
	case models.NatureWorkspace:
		return s.resolveWorkspaceOwned(ctx, req, key)
	case models.NatureRuntime, models.NatureSkill:
		return s.resolveDirect(ctx, req, key)
	default:
		return resolved{}, fail(KeyNotFound, fmt.Errorf("key %s has unknown nature %q", key.ID, key.Nature))
	}
}

func (s *Service) resolveSystemOwned(ctx context.Context, req models.HandshakeRequest, key *models.IdentityKey) (resolved, *Failure) {
	if req.Nature != models.NatureRuntime {
		return resolved{}, fail(OwnerMissing, errors.New("system keys only register runtimes"))
	}

	sys, err := s.deps.Systems.FindByID(ctx, key.RelatedID)
	if err != nil {
		return resolved{}, fail(OwnerMissing, err)
	}

	rt, err := s.findOrCreateRuntime(ctx, models.OwnerScope{SystemID: sys.ID}, req.Name)
	if err != nil {
		return resolved{}, fail(OwnerMissing, err)
	}

	return resolved{runtime: rt}, nil
}

func (s *Service) resolveWorkspaceOwned(ctx context.Context, req models.HandshakeRequest, key *models.IdentityKey) (resolved, *Failure) {
	ws, err := s.deps.Workspaces.FindByID(ctx, key.RelatedID)
	if err != nil {
		return resolved{}, fail(OwnerMissing, err)
	}

	if req.Nature == models.NatureRuntime {
		rt, err := s.findOrCreateRuntime(ctx, models.OwnerScope{WorkspaceID: ws.ID}, req.Name)
		if err != nil {
			return resolved{}, fail(OwnerMissing, err)
		}

		return resolved{runtime: rt}, nil
	}

	sk, err := s.findOrCreateSkill(ctx, ws.ID, req.Name)
	if err != nil {
		return resolved{}, fail(OwnerMissing, err)
	}

	return resolved{skill: sk}, nil
}

// resolveDirect handles keys issued to one runtime or skill. The entity
// must already exist and must match the requested nature.
func (s *Service) resolveDirect(ctx context.Context, req models.HandshakeRequest, key *models.IdentityKey) (resolved, *Failure) {
	if key.Nature != req.Nature {
		return resolved{}, fail(OwnerMissing, fmt.Errorf("%s key used for %s handshake", key.Nature, req.Nature))
	}

	if key.Nature == models.NatureRuntime {
		rt, err := s.deps.Runtimes.FindByID(ctx, key.RelatedID)
		if err != nil {
			return resolved{}, fail(OwnerMissing, err)
		}

		return resolved{runtime: rt}, nil
	}

	sk, err := s.deps.Skills.FindByID(ctx, key.RelatedID)
	if err != nil {
		return resolved{}, fail(OwnerMissing, err)
	}

	return resolved{skill: sk}, nil
}

func (s *Service) findOrCreateRuntime(ctx context.Context, scope models.OwnerScope, name string) (*models.Runtime, error) {
	if name == "" {
		return nil, errors.New("runtime name is required")
	}

	rt, err := s.deps.Runtimes.FindByName(ctx, scope, name)
	if err == nil {
		return rt, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	rt = &models.Runtime{
		Name:        name,
		SystemID:    scope.SystemID,
		WorkspaceID: scope.WorkspaceID,
		Status:      models.RuntimeActive,
		Type:        models.RuntimeEdge,
		CreatedAt:   s.now(),
	}

	err = s.deps.Runtimes.Create(ctx, rt)
	if errors.Is(err, repository.ErrConflict) {
		// Lost a race with a concurrent handshake for the same name.
		return s.deps.Runtimes.FindByName(ctx, scope, name)
	}

	if err != nil {
		return nil, err
	}

	s.logger.Info("runtime created", slog.String("runtime_id", rt.ID), slog.String("name", name))

	return rt, nil
}

func (s *Service) findOrCreateSkill(ctx context.Context, workspaceID, name string) (*models.Skill, error) {
	if name == "" {
		return nil, errors.New("skill name is required")
	}

	sk, err := s.deps.Skills.FindByName(ctx, workspaceID, name)
	if err == nil {
		return sk, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	sk = &models.Skill{Name: name, WorkspaceID: workspaceID, CreatedAt: s.now()}

	err = s.deps.Skills.Create(ctx, sk)
	if errors.Is(err, repository.ErrConflict) {
		return s.deps.Skills.FindByName(ctx, workspaceID, name)
	}

	if err != nil {
		return nil, err
	}

	s.logger.Info("skill created", slog.String("skill_id", sk.ID), slog.String("name", name))

	return sk, nil
}
