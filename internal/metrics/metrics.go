// Package metrics holds the Prometheus counters exported on /metrics.
// A nil *Metrics is valid and records nothing, so components can be
// built without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skilder"

// Metrics groups the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	logins     *prometheus.CounterVec
	handshakes *prometheus.CounterVec
	rejections *prometheus.CounterVec
	oauthState *prometheus.CounterVec
}

// New creates the counters and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Identity handshakes by requested nature and outcome.",
		}, []string{"nature", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests refused by the attempt limiter, by counter kind.",
		}, []string{"kind"}),
		oauthState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_state_validations_total",
			Help:      "OAuth state validations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.handshakes,
		m.rejections,
		m.oauthState,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// Login counts a login attempt.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}

	m.logins.WithLabelValues(outcome).Inc()
}

// Handshake counts a handshake.
func (m *Metrics) Handshake(nature, outcome string) {
	if m == nil {
		return
	}

	m.handshakes.WithLabelValues(nature, outcome).Inc()
}

// RateLimited counts a limiter rejection.
func (m *Metrics) RateLimited(kind string) {
	if m == nil {
		return
	}

	m.rejections.WithLabelValues(kind).Inc()
}

// OAuthState counts a state validation.
func (m *Metrics) OAuthState(outcome string) {
	if m == nil {
		return
	}

	m.oauthState.WithLabelValues(outcome).Inc()
}
