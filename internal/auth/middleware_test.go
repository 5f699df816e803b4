package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(t *testing.T) (http.Handler, *TokenIssuer) {
	t.Helper()

	issuer := testIssuer(t, nil)
	svc := NewService(nil, nil, issuer, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", RequestUserID(r.Context()))
		w.Header().Set("X-IP", RequestRemoteIP(r.Context()))

		if c := RequestClaims(r.Context()); c != nil {
			w.Header().Set("X-Workspace", c.WorkspaceID)
		}

		w.WriteHeader(http.StatusOK)
	})

	return Middleware(svc, nil, "skilder")(next), issuer
}

func TestMiddleware_NoToken(t *testing.T) {
	h, _ := protected(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="skilder"`, w.Header().Get("WWW-Authenticate"))
}

func TestMiddleware_NonBearerScheme(t *testing.T) {
	h, _ := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestMiddleware_InvalidToken(t *testing.T) {
	h, issuer := protected(t)

	refresh, _, err := issuer.Issue(Identity{UserID: "u1"}, KindRefresh)
	require.NoError(t, err)

	for _, token := range []string{"garbage", refresh} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Bearer realm="skilder", error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	h, issuer := protected(t)

	token, _, err := issuer.Issue(Identity{UserID: "u1", WorkspaceID: "ws-9"}, KindAccess)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Header().Get("X-User"))
	assert.Equal(t, "192.0.2.1", w.Header().Get("X-IP"))
	assert.Equal(t, "ws-9", w.Header().Get("X-Workspace"))
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", RemoteIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", RemoteIP(req))
}
