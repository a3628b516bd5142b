package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryforge/trustcore/pkg/keys"
	"github.com/queryforge/trustcore/pkg/rbac"
	"github.com/queryforge/trustcore/pkg/storage"
	"github.com/queryforge/trustcore/pkg/tokens"
)

// setupServerTest wires a full server over miniredis with a fast test key
// so RSA generation does not dominate the run.
func setupServerTest(t *testing.T) (*Server, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	storeConfig := storage.DefaultConfig()
	storeConfig.RedisURL = "redis://" + mr.Addr()

	store, err := storage.NewRedisStore(storeConfig)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis store: %v", err)
	}

	ctx := context.Background()

	keyManager := keys.NewManager(store, keys.DefaultConfig(), nil)
	if err := keyManager.Initialize(ctx); err != nil {
		store.Close()
		mr.Close()
		t.Fatalf("Failed to initialize key manager: %v", err)
	}

	tokenService := tokens.NewService(store, keyManager, tokens.DefaultConfig(), nil)

	engine := rbac.NewEngine(store, rbac.DefaultConfig(), nil)
	if err := engine.Initialize(ctx); err != nil {
		store.Close()
		mr.Close()
		t.Fatalf("Failed to initialize engine: %v", err)
	}

	server := NewServer(store, keyManager, tokenService, engine, nil)

	cleanup := func() {
		store.Close()
		mr.Close()
	}

	return server, cleanup
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_JWKS(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "GET", "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var jwks keys.JWKS
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)
	assert.Equal(t, "AQAB", jwks.Keys[0].E)
}

func TestTokenHandlers_IssueAndVerify(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/auth/tokens", map[string]interface{}{
		"user_id":   "u1",
		"tenant_id": "t1",
		"scopes":    []string{"read"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var pair tokens.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.SessionID)

	w = doJSON(t, server, "POST", "/auth/tokens/verify", map[string]string{"token": pair.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)

	var claims tokens.Claims
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claims))
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "t1", claims.TenantID)
}

func TestTokenHandlers_IssueRequiresUserID(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/auth/tokens", map[string]string{"tenant_id": "t1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenHandlers_VerifyRejectsGarbage(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/auth/tokens/verify", map[string]string{"token": "not.a.jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandlers_RefreshRotatesSession(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/auth/tokens", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var first tokens.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = doJSON(t, server, "POST", "/auth/tokens/refresh", map[string]string{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	var second tokens.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// The spent refresh token's session is gone, so both old tokens are dead.
	w = doJSON(t, server, "POST", "/auth/tokens/refresh", map[string]string{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, server, "POST", "/auth/tokens/verify", map[string]string{"token": first.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandlers_RefreshRejectsAccessToken(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/auth/tokens", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var pair tokens.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))

	w = doJSON(t, server, "POST", "/auth/tokens/refresh", map[string]string{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandlers_SessionLifecycle(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/auth/tokens", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var pair tokens.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))

	w = doJSON(t, server, "GET", "/auth/sessions/"+pair.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var session tokens.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "u1", session.UserID)

	w = doJSON(t, server, "DELETE", "/auth/sessions/"+pair.SessionID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, server, "GET", "/auth/sessions/"+pair.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, server, "POST", "/auth/tokens/verify", map[string]string{"token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandlers_RevokeAllUserSessions(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	var pairs []tokens.TokenPair
	for i := 0; i < 2; i++ {
		w := doJSON(t, server, "POST", "/auth/tokens", map[string]string{"user_id": "u1"})
		require.Equal(t, http.StatusCreated, w.Code)

		var pair tokens.TokenPair
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
		pairs = append(pairs, pair)
	}

	w := doJSON(t, server, "DELETE", "/auth/users/u1/sessions", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	for _, pair := range pairs {
		w = doJSON(t, server, "POST", "/auth/tokens/verify", map[string]string{"token": pair.AccessToken})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestRBACHandlers_RoleLifecycle(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	create := map[string]interface{}{
		"name":        "auditor",
		"description": "Read-only audit access",
		"permissions": []rbac.Permission{
			{ResourceType: rbac.ResourceAnalytics, Action: rbac.ActionRead, Effect: rbac.EffectAllow},
		},
	}

	w := doJSON(t, server, "POST", "/rbac/roles", create)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, server, "POST", "/rbac/roles", create)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, server, "GET", "/rbac/roles/auditor", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var role rbac.Role
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &role))
	assert.Equal(t, "Read-only audit access", role.Description)

	w = doJSON(t, server, "POST", "/rbac/users/u1/roles", map[string]string{"role": "auditor"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, server, "DELETE", "/rbac/roles/auditor", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, server, "DELETE", "/rbac/users/u1/roles/auditor", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, server, "DELETE", "/rbac/roles/auditor", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, server, "GET", "/rbac/roles/auditor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRBACHandlers_SystemRoleProtected(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "PUT", "/rbac/roles/super_admin", map[string]string{"description": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, server, "DELETE", "/rbac/roles/super_admin", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACHandlers_CheckPermission(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/rbac/users/u1/roles", map[string]string{"role": "user", "tenant_id": "t1"})
	require.Equal(t, http.StatusNoContent, w.Code)

	check := map[string]interface{}{
		"user_id":       "u1",
		"resource_type": "query",
		"action":        "create",
		"context": map[string]interface{}{
			"user_tenant_id":     "t1",
			"resource_tenant_id": "t1",
		},
	}
	w = doJSON(t, server, "POST", "/rbac/check", check)
	require.Equal(t, http.StatusOK, w.Code)

	var decision map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.True(t, decision["allowed"])

	check["action"] = "manage"
	w = doJSON(t, server, "POST", "/rbac/check", check)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.False(t, decision["allowed"])
}

func TestRBACHandlers_CheckValidation(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/rbac/check", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRBACHandlers_GetUserPermissions(t *testing.T) {
	server, cleanup := setupServerTest(t)
	defer cleanup()

	w := doJSON(t, server, "POST", "/rbac/users/u1/roles", map[string]string{"role": "viewer"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, server, "GET", "/rbac/users/u1/permissions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var permissions []rbac.Permission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &permissions))
	assert.NotEmpty(t, permissions)
}
