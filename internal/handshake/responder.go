package handshake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpinai/skilder/internal/lifecycle"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Responder defaults.
const (
	DefaultSubject = "skilder.handshake"
	DefaultQueue   = "skilder-identity"
	DefaultRate    = 200
	DefaultBurst   = 50

	requestTimeout = 10 * time.Second
)

// Handshaker resolves one request.
type Handshaker interface {
	Handshake(ctx context.Context, req models.HandshakeRequest) models.HandshakeResponse
}

// ResponderConfig sets the subscription and the flood bound. Rate is
// requests per second processed by this instance; requests over the
// bound are refused without touching the resolver.
type ResponderConfig struct {
	Subject string
	Queue   string
	Rate    float64
	Burst   int
}

// Responder serves handshakes over NATS request/reply. Instances share
// a queue group so each request is answered once.
type Responder struct {
	*lifecycle.Controller

	nc      *nats.Conn
	h       Handshaker
	cfg     ResponderConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	sub     *nats.Subscription
}

// NewResponder creates a responder. It subscribes on the first Start.
func NewResponder(nc *nats.Conn, h Handshaker, cfg ResponderConfig, logger *slog.Logger) *Responder {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}

	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	r := &Responder{
		nc:      nc,
		h:       h,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		logger:  logging.Component(logger, "handshake-responder"),
	}

	r.Controller = lifecycle.New("handshake-responder", lifecycle.Hooks{
		Initialize: r.subscribe,
		Shutdown:   r.drain,
	})

	return r
}

func (r *Responder) subscribe(context.Context) error {
	sub, err := r.nc.QueueSubscribe(r.cfg.Subject, r.cfg.Queue, r.handle)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.cfg.Subject, err)
	}

	if err := r.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}

	r.sub = sub
	r.logger.Info("handshake responder listening",
		slog.String("subject", r.cfg.Subject),
		slog.String("queue", r.cfg.Queue),
	)

	return nil
}

func (r *Responder) drain(context.Context) error {
	if r.sub == nil {
		return nil
	}

	err := r.sub.Drain()
	r.sub = nil

	return err
}

func (r *Responder) handle(msg *nats.Msg) {
	if msg.Reply == "" {
		r.logger.Debug("dropping handshake without reply subject")
		return
	}

	nature := models.Nature(gjson.GetBytes(msg.Data, "nature").Str)

	if !r.limiter.Allow() {
		r.logger.Warn("handshake flood bound reached", slog.String("nature", string(nature)))
		r.reply(msg, models.HandshakeResponse{Nature: nature, Error: models.HandshakeErrAuthenticationFailed})

		return
	}

	// Cheap rejection before decoding the full body.
	if !gjson.ValidBytes(msg.Data) || (nature != models.NatureRuntime && nature != models.NatureSkill) {
		r.reply(msg, models.HandshakeResponse{Nature: nature, Error: models.HandshakeErrAuthenticationFailed})
		return
	}

	var req models.HandshakeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		r.logger.Debug("malformed handshake", slog.String("error", err.Error()))
		r.reply(msg, models.HandshakeResponse{Nature: nature, Error: models.HandshakeErrAuthenticationFailed})

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	r.reply(msg, r.h.Handshake(ctx, req))
}

func (r *Responder) reply(msg *nats.Msg, resp models.HandshakeResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("encoding handshake response", slog.String("error", err.Error()))
		return
	}

	if err := msg.Respond(data); err != nil {
		r.logger.Warn("sending handshake response", slog.String("error", err.Error()))
	}
}
