package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpinai/skilder/internal/auth"
	"github.com/alpinai/skilder/internal/cache"
	"github.com/alpinai/skilder/internal/config"
	"github.com/alpinai/skilder/internal/credentials"
	"github.com/alpinai/skilder/internal/handshake"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/metrics"
	"github.com/alpinai/skilder/internal/models"
	"github.com/alpinai/skilder/internal/oauth"
	"github.com/alpinai/skilder/internal/ratelimit"
	"github.com/alpinai/skilder/internal/repository/memory"
	"github.com/alpinai/skilder/internal/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Handle helper subcommands before config loading.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hash-password":
			hashSecret("Enter password: ", auth.HashPassword)
			return
		case "hash-key":
			hashSecret("Enter master key: ", credentials.HashKey)
			return
		case "gen-account-seed":
			genAccountSeed()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func hashSecret(prompt string, hash func(string) (string, error)) {
	fmt.Fprint(os.Stderr, prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}

	h, err := hash(scanner.Text())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(h)
}

// genAccountSeed prints a fresh account seed for NATS_ACCOUNT_SIGNING_SEED
// on stdout and its public key on stderr.
func genAccountSeed() {
	kp, err := nkeys.CreateAccount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	seed, err := kp.Seed()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	pub, err := kp.PublicKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "public key: %s\n", pub)
	fmt.Println(string(seed))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("skilder-identity starting",
		slog.String("version", Version),
		slog.String("cache_backend", cfg.CacheBackend),
	)

	if cfg.IsProduction() && (cfg.CacheBackend == config.BackendMemory || cfg.CacheBackend == config.BackendBolt) {
		logger.Warn("cache backend is local to this process, anti-replay and rate limits are not shared between instances",
			slog.String("cache_backend", cfg.CacheBackend),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	nc, err := connectNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer nc.drain(logger)

	store, err := openStore(ctx, cfg, nc.Conn, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	c := cache.New(store, logger, cache.WithBuckets(cfg.Buckets()...))
	if err := c.Start(ctx, "main"); err != nil {
		return fmt.Errorf("starting cache: %w", err)
	}
	defer func() {
		if err := c.Stop(context.Background(), "main"); err != nil {
			logger.Warn("stopping cache", slog.String("error", err.Error()))
		}
	}()

	db := memory.New()
	if err := bootstrap(ctx, cfg, db, logger); err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	}, nil)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}
	authSvc := auth.NewService(db.Users(), db.Sessions(), issuer, logger, auth.WithMetrics(m))

	stateSvc, err := oauth.New(cfg.OAuthStateSecret, c, logger, oauth.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("creating oauth state service: %w", err)
	}

	credSvc, err := credentials.New(db.Toolsets(), db.Tokens(), credentials.Config{
		SigningSeed: cfg.NATSAccountSigningSeed,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating credentials service: %w", err)
	}
	if cfg.NATSAccountSigningSeed == "" {
		logger.Warn("NATS_ACCOUNT_SIGNING_SEED not set, runtime credential requests will fail")
	}

	limiter := ratelimit.New(c, ratelimit.Config{
		MaxKeyAttempts: cfg.RateLimitMaxKeyAttempts,
		MaxIPAttempts:  cfg.RateLimitMaxIPAttempts,
	}, logger, m)

	hs := handshake.New(handshake.Deps{
		Identities: db.Identities(),
		Systems:    db.Systems(),
		Workspaces: db.Workspaces(),
		Runtimes:   db.Runtimes(),
		Skills:     db.Skills(),
		Limiter:    limiter,
		Logger:     logger,
		Metrics:    m,
	})

	heartbeats := cache.NewBucket[handshake.Presence](c, cache.BucketHeartbeat)
	hs.OnHandshake(models.NatureRuntime, handshake.RecordPresence(heartbeats, logger, nil))
	hs.OnHandshake(models.NatureSkill, handshake.RecordPresence(heartbeats, logger, nil))

	responder := handshake.NewResponder(nc.Conn, hs, handshake.ResponderConfig{
		Subject: cfg.HandshakeSubject,
		Queue:   cfg.HandshakeQueue,
		Rate:    cfg.HandshakeRate,
		Burst:   cfg.HandshakeBurst,
	}, logger)
	if err := responder.Start(ctx, "main"); err != nil {
		return fmt.Errorf("starting handshake responder: %w", err)
	}
	defer func() {
		if err := responder.Stop(context.Background(), "main"); err != nil {
			logger.Warn("stopping handshake responder", slog.String("error", err.Error()))
		}
	}()

	mux := server.NewMux(server.MuxConfig{
		Auth:        authSvc,
		OAuth:       stateSvc,
		Credentials: credSvc,
		Limiter:     limiter,
		Metrics:     m,
		Logger:      logger,
		Health: map[string]server.HealthCheck{
			"nats": func(context.Context) error {
				if s := nc.Status(); s != nats.CONNECTED {
					return fmt.Errorf("nats connection is %s", s)
				}
				return nil
			},
			"cache": func(ctx context.Context) error {
				_, err := c.Keys(ctx, cache.BucketEphemeral, "*")
				return err
			},
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, server.NewHTTPServer(cfg.HTTPListenAddr, mux), logger)
	})

	return g.Wait()
}

func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	logger.Info("starting HTTP server", slog.String("listen", srv.Addr))

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}
