package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	"github.com/alpinai/skilder/internal/cache/natskv"
	"github.com/alpinai/skilder/internal/cache/rediskv"
	"github.com/alpinai/skilder/internal/config"
	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/repository/memory"
	"github.com/alpinai/skilder/internal/state"
	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"
)

const (
	// connectAttempts bounds startup retries against NATS and Redis.
	connectAttempts = 6
	// drainTimeout bounds how long in-flight handshake replies may take
	// to flush on shutdown.
	drainTimeout = 5 * time.Second
)

// retry runs op with exponential backoff until it succeeds, ctx ends or
// connectAttempts is reached.
func retry[T any](ctx context.Context, what string, logger *slog.Logger, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("connection attempt failed",
				slog.String("target", what),
				slog.Duration("retry_in", next),
				slog.String("error", err.Error()),
			)
		}),
	)
}

// natsConn is a connection plus a channel closed once the connection
// has fully closed, which after Drain means pending replies are flushed.
type natsConn struct {
	*nats.Conn
	closed <-chan struct{}
}

// closeSignal appends the options that bound draining and report the
// final close on the returned channel.
func closeSignal(opts []nats.Option) ([]nats.Option, <-chan struct{}) {
	closed := make(chan struct{})

	var once sync.Once

	return append(opts,
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) {
			once.Do(func() { close(closed) })
		}),
	), closed
}

// drain drains the connection and waits for it to close.
func (c *natsConn) drain(logger *slog.Logger) {
	if err := c.Drain(); err != nil {
		logger.Warn("draining nats connection", slog.String("error", err.Error()))
		c.Close()
	}

	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		logger.Warn("nats connection did not close after drain")
	}
}

func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsConn, error) {
	opts, closed := closeSignal([]nats.Option{
		nats.Name("skilder-identity"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	})

	if cfg.NATSCredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.NATSCredsFile))
	}

	servers := strings.Join(cfg.NATSServers, ",")

	nc, err := retry(ctx, "nats", logger, func() (*nats.Conn, error) {
		return nats.Connect(servers, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	logger.Info("connected to nats", slog.String("url", nc.ConnectedUrl()))

	return &natsConn{Conn: nc, closed: closed}, nil
}

// openStore builds the cache backend named by cfg.CacheBackend.
func openStore(ctx context.Context, cfg *config.Config, nc *nats.Conn, logger *slog.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendNATS:
		s, err := natskv.New(nc, natskv.WithReplicas(cfg.NATSReplicas), natskv.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("opening nats kv store: %w", err)
		}

		return s, nil

	case config.BackendRedis:
		s, err := retry(ctx, "redis", logger, func() (*rediskv.Store, error) {
			return rediskv.New(ctx, rediskv.Config{
				Addr:      cfg.RedisAddr,
				Username:  cfg.RedisUsername,
				Password:  cfg.RedisPassword,
				DB:        cfg.RedisDB,
				KeyPrefix: cfg.RedisKeyPrefix,
			}, logger)
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis store: %w", err)
		}

		return s, nil

	case config.BackendBolt:
		s, err := state.LoadAt(cfg.CacheBoltPath)
		if err != nil {
			return nil, fmt.Errorf("opening bolt store: %w", err)
		}

		return s, nil

	case config.BackendMemory:
		return cache.NewMemoryStore(), nil
	}

	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// bootstrap seeds the in-memory repositories from config: an admin user
// and a platform system reachable with BOOTSTRAP_SYSTEM_KEY.
func bootstrap(ctx context.Context, cfg *config.Config, db *memory.DB, logger *slog.Logger) error {
	if cfg.BootstrapAdminEmail != "" {
		if err := db.Users().Create(ctx, &models.User{
			Email:        cfg.BootstrapAdminEmail,
			PasswordHash: cfg.BootstrapAdminPasswordHash,
			Role:         "admin",
			CreatedAt:    time.Now(),
		}); err != nil {
			return fmt.Errorf("seeding admin user: %w", err)
		}

		logger.Info("seeded admin user", slog.String("email", cfg.BootstrapAdminEmail))
	}

	if cfg.BootstrapSystemKey != "" {
		sys := db.AddSystem(models.System{Name: "skilder"})

		if err := db.Identities().Create(ctx, &models.IdentityKey{
			Key:       cfg.BootstrapSystemKey,
			Nature:    models.NatureSystem,
			RelatedID: sys.ID,
			CreatedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("seeding system key: %w", err)
		}

		logger.Info("seeded system identity", slog.String("system_id", sys.ID))
	}

	return nil
}
