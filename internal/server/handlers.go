package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/alpinai/skilder/internal/auth"
	"github.com/alpinai/skilder/internal/credentials"
	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/alpinai/skilder/internal/oauth"
	"github.com/alpinai/skilder/internal/ratelimit"
	"github.com/go-chi/chi/v5"
)

var providerName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

type handlers struct {
	auth           *auth.Service
	oauth          *oauth.Service
	credentials    *credentials.Service
	credentialsTTL time.Duration
	limiter        Limiter
	health         map[string]HealthCheck
	logger         *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, description string) {
	writeJSON(w, status, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
			return false
		}

		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body")

		return false
	}

	return true
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	req.IPAddress = auth.RemoteIP(r)
	req.UserAgent = r.UserAgent()

	if h.limiter != nil && !h.limiter.CheckIPAttempt(ctx, req.IPAddress) {
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many failed attempts")
		return
	}

	res := h.auth.Login(ctx, req)

	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, res)
	case res.Error == apperrors.MsgInvalidCredentials:
		if h.limiter != nil {
			h.limiter.RecordFailedIPAttempt(ctx, req.IPAddress)
		}

		writeJSON(w, http.StatusUnauthorized, res)
	default:
		writeJSON(w, http.StatusInternalServerError, res)
	}
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req auth.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.IPAddress = auth.RemoteIP(r)

	res := h.auth.RefreshToken(r.Context(), req)

	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, res)
	case res.Error == apperrors.MsgRefreshFailed:
		writeJSON(w, http.StatusInternalServerError, res)
	default:
		writeJSON(w, http.StatusUnauthorized, res)
	}
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res := h.auth.Logout(r.Context(), req.RefreshToken)
	if !res.Success {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	claims := auth.RequestClaims(r.Context())
	writeJSON(w, http.StatusOK, claims.Identity)
}

type stateRequest struct {
	RedirectURI string   `json:"redirectUri"`
	Scopes      []string `json:"scopes"`
}

type stateResponse struct {
	State string `json:"state"`
}

func (h *handlers) createState(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !providerName.MatchString(provider) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "unknown provider")
		return
	}

	var req stateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !validRedirectURI(req.RedirectURI) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "redirectUri must be https or a loopback http URL")
		return
	}

	ctx := r.Context()
	claims := auth.RequestClaims(ctx)
	userID := auth.RequestUserID(ctx)

	state, err := h.oauth.GenerateState(userID, claims.WorkspaceID, provider, req.RedirectURI, req.Scopes)
	if err != nil {
		h.logger.Error("generating oauth state",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "could not create state")

		return
	}

	h.logger.Debug("oauth state issued",
		slog.String("user_id", userID),
		slog.String("provider", provider),
		slog.String("ip", auth.RequestRemoteIP(ctx)),
	)

	writeJSON(w, http.StatusOK, stateResponse{State: state})
}

func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "state is required")
		return
	}

	payload := h.oauth.ValidateState(r.Context(), state)
	if payload == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_state", "state is invalid, expired or already used")
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.health) > 0 {
		resp.Checks = make(map[string]string, len(h.health))
	}

	for name, check := range h.health {
		if err := check(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable

			continue
		}

		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// validRedirectURI accepts absolute https URLs and http URLs on a
// loopback host (RFC 8252 Section 7.3).
func validRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil || u.Fragment != "" {
		return false
	}

	switch u.Scheme {
	case "https":
		return true
	case "http":
		return isLoopbackHost(u.Hostname())
	default:
		return false
	}
}

// isLoopbackHost returns true if the hostname is a loopback address.
func isLoopbackHost(host string) bool {
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

type credentialsRequest struct {
	MasterKey string `json:"masterKey"`
	RuntimeID string `json:"runtimeId"`
}

type credentialsResponse struct {
	AccessToken string `json:"accessToken"`
	NatsJWT     string `json:"natsJwt"`
	ToolsetID   string `json:"toolsetId"`
	ExpiresIn   int    `json:"expiresIn"`
}

func (h *handlers) issueCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.MasterKey == "" || req.RuntimeID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "masterKey and runtimeId are required")
		return
	}

	ctx := r.Context()
	ip := auth.RemoteIP(r)
	prefix := ratelimit.KeyPrefix(req.MasterKey)

	if h.limiter != nil && (!h.limiter.CheckKeyAttempt(ctx, prefix) || !h.limiter.CheckIPAttempt(ctx, ip)) {
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many failed attempts")
		return
	}

	toolset := h.credentials.ValidateMasterKey(ctx, req.MasterKey, chi.URLParam(r, "name"))
	if toolset == nil {
		if h.limiter != nil {
			h.limiter.RecordFailedAttempt(ctx, prefix, ip)
		}

		writeJSONError(w, http.StatusUnauthorized, "invalid_client", "invalid master key")

		return
	}

	if h.limiter != nil {
		h.limiter.RecordSuccessfulAttempt(ctx, prefix)
	}

	natsJWT, err := h.credentials.GenerateNatsJWT(toolset.ID, req.RuntimeID, toolset.WorkspaceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrSigningSeedMissing) {
			writeJSONError(w, http.StatusServiceUnavailable, "server_error", "NATS credentials are not configured")
			return
		}

		h.logger.Error("signing nats jwt",
			slog.String("toolset_id", toolset.ID),
			slog.String("error", err.Error()),
		)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "could not sign NATS credentials")

		return
	}

	token, err := h.credentials.GenerateAccessToken(ctx, req.RuntimeID, toolset.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", apperrors.MsgAccessTokenFailed)
		return
	}

	writeJSON(w, http.StatusOK, credentialsResponse{
		AccessToken: token,
		NatsJWT:     natsJWT,
		ToolsetID:   toolset.ID,
		ExpiresIn:   int(h.credentialsTTL.Seconds()),
	})
}
