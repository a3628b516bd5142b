package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/httputil"
	"github.com/queryforge/trustcore/pkg/storage"
	"github.com/queryforge/trustcore/pkg/tokens"
)

// TokenHandlers handles token and session HTTP requests
type TokenHandlers struct {
	tokens *tokens.Service
	log    *logrus.Logger
}

// NewTokenHandlers creates a new token handlers instance
func NewTokenHandlers(service *tokens.Service, log *logrus.Logger) *TokenHandlers {
	return &TokenHandlers{
		tokens: service,
		log:    log,
	}
}

// RegisterRoutes registers token and session routes
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/tokens", h.createTokens).Methods("POST")
	router.HandleFunc("/auth/tokens/verify", h.verifyToken).Methods("POST")
	router.HandleFunc("/auth/tokens/refresh", h.refreshTokens).Methods("POST")

	router.HandleFunc("/auth/sessions/{id}", h.getSession).Methods("GET")
	router.HandleFunc("/auth/sessions/{id}", h.revokeSession).Methods("DELETE")
	router.HandleFunc("/auth/users/{user_id}/sessions", h.revokeUserSessions).Methods("DELETE")
}

// createTokens handles POST /auth/tokens. Credential verification is the
// caller's responsibility; this endpoint only mints tokens.
func (h *TokenHandlers) createTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string   `json:"user_id"`
		TenantID string   `json:"tenant_id"`
		Scopes   []string `json:"scopes"`
		Audience []string `json:"audience"`
		DeviceID string   `json:"device_id"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	pair, err := h.tokens.CreateTokens(r.Context(), tokens.CreateTokensRequest{
		UserID:    req.UserID,
		TenantID:  req.TenantID,
		Scopes:    req.Scopes,
		Audience:  req.Audience,
		DeviceID:  req.DeviceID,
		IPAddress: r.RemoteAddr,
	})
	if err != nil {
		h.log.WithError(err).Error("Token issuance failed")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "token issuance unavailable")
		return
	}

	httputil.WriteCreated(w, pair)
}

// verifyToken handles POST /auth/tokens/verify
func (h *TokenHandlers) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	claims, err := h.tokens.VerifyToken(r.Context(), req.Token)
	if errors.Is(err, tokens.ErrInvalidToken) {
		httputil.WriteUnauthorized(w, "invalid token")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, claims)
}

// refreshTokens handles POST /auth/tokens/refresh. A valid refresh token
// yields a fresh pair under a brand-new session; the old session is
// revoked so the spent refresh token cannot be replayed.
func (h *TokenHandlers) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}

	claims, err := h.tokens.VerifyToken(r.Context(), req.RefreshToken)
	if errors.Is(err, tokens.ErrInvalidToken) {
		httputil.WriteUnauthorized(w, "invalid refresh token")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if claims.TokenType != tokens.TokenTypeRefresh {
		httputil.WriteUnauthorized(w, "not a refresh token")
		return
	}

	if claims.SessionID != "" {
		if err := h.tokens.RevokeSession(r.Context(), claims.SessionID); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}

	pair, err := h.tokens.CreateTokens(r.Context(), tokens.CreateTokensRequest{
		UserID:    claims.Subject,
		TenantID:  claims.TenantID,
		Audience:  []string(claims.Audience),
		DeviceID:  claims.DeviceID,
		IPAddress: r.RemoteAddr,
	})
	if err != nil {
		h.log.WithError(err).Error("Token refresh failed")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "token issuance unavailable")
		return
	}

	httputil.WriteSuccess(w, pair)
}

// getSession handles GET /auth/sessions/{id}
func (h *TokenHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.tokens.GetSession(r.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, "session not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, session)
}

// revokeSession handles DELETE /auth/sessions/{id}
func (h *TokenHandlers) revokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.tokens.RevokeSession(r.Context(), sessionID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// revokeUserSessions handles DELETE /auth/users/{user_id}/sessions
func (h *TokenHandlers) revokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	if err := h.tokens.RevokeAllUserSessions(r.Context(), userID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
