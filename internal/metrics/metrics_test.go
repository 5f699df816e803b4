package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Login("success")
	m.Login("success")
	m.Login("invalid_credentials")
	m.Handshake("runtime", "success")
	m.RateLimited("key")
	m.OAuthState("replay")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handshakes.WithLabelValues("runtime", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oauthState.WithLabelValues("replay")))
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Login("success")
		m.Handshake("skill", "failure")
		m.RateLimited("ip")
		m.OAuthState("valid")
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.Login("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `skilder_logins_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
