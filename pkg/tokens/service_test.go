package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryforge/trustcore/pkg/keys"
	"github.com/queryforge/trustcore/pkg/storage"
)

// setupServiceTest wires a token service to a miniredis-backed store with an
// initialized key manager.
func setupServiceTest(t *testing.T, config Config) (*Service, *keys.Manager, *miniredis.Miniredis, func()) {
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

	keyManager := keys.NewManager(store, keys.DefaultConfig(), nil)
	if err := keyManager.Initialize(context.Background()); err != nil {
		store.Close()
		mr.Close()
		t.Fatalf("Failed to initialize key manager: %v", err)
	}

	service := NewService(store, keyManager, config, nil)

	cleanup := func() {
		store.Close()
		mr.Close()
	}

	return service, keyManager, mr, cleanup
}

func TestService_CreateTokensAndVerify(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	pair, err := service.CreateTokens(ctx, CreateTokensRequest{
		UserID:    "u1",
		TenantID:  "t1",
		Scopes:    []string{"query:read", "query:write"},
		DeviceID:  "laptop",
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, 900, pair.ExpiresIn)
	assert.NotEmpty(t, pair.SessionID)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := service.VerifyToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", access.Subject)
	assert.Equal(t, "t1", access.TenantID)
	assert.Equal(t, TokenTypeAccess, access.TokenType)
	assert.Equal(t, []string{"query:read", "query:write"}, access.Scope)
	assert.Equal(t, pair.SessionID, access.SessionID)
	assert.True(t, access.HasScope("query:read"))
	assert.False(t, access.HasScope("admin"))

	refresh, err := service.VerifyToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
	assert.Equal(t, []string{"refresh"}, refresh.Scope)
	assert.Equal(t, pair.SessionID, refresh.SessionID)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestService_CreateTokens_NoSigningKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	storeConfig := storage.DefaultConfig()
	storeConfig.RedisURL = "redis://" + mr.Addr()
	store, err := storage.NewRedisStore(storeConfig)
	require.NoError(t, err)
	defer store.Close()

	// Key manager deliberately not initialized.
	keyManager := keys.NewManager(store, keys.DefaultConfig(), nil)
	service := NewService(store, keyManager, DefaultConfig(), nil)

	_, err = service.CreateTokens(context.Background(), CreateTokensRequest{UserID: "u1"})
	assert.ErrorIs(t, err, keys.ErrNoCurrentKey)
}

func TestService_VerifyToken_Garbage(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	_, err := service.VerifyToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_VerifyToken_ForeignKey(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	// A token signed by a different deployment's key never verifies here,
	// even with matching issuer and claims.
	other, _, _, otherCleanup := setupServiceTest(t, DefaultConfig())
	defer otherCleanup()

	pair, err := other.CreateTokens(context.Background(), CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = service.VerifyToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_VerifyToken_WrongIssuer(t *testing.T) {
	service, keyManager, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	otherConfig := DefaultConfig()
	otherConfig.Issuer = "https://someone-else.example.com"
	other := NewService(service.store, keyManager, otherConfig, nil)

	pair, err := other.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	// Same keys, wrong issuer: rejected.
	_, err = service.VerifyToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_VerifyToken_Expired(t *testing.T) {
	config := DefaultConfig()
	config.AccessTokenTTL = -time.Minute // already expired at issuance

	service, _, _, cleanup := setupServiceTest(t, config)
	defer cleanup()

	ctx := context.Background()

	pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = service.VerifyToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_VerifyToken_RevokedSession(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = service.VerifyToken(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, service.RevokeSession(ctx, pair.SessionID))

	// Cryptographically valid and unexpired, but the session is gone.
	_, err = service.VerifyToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Revoking again is a no-op.
	require.NoError(t, service.RevokeSession(ctx, pair.SessionID))
}

func TestService_VerifyToken_SurvivesRotation(t *testing.T) {
	service, keyManager, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	// Rotate; the old key stays within its retention window.
	_, err = keyManager.GenerateKeyPair(ctx)
	require.NoError(t, err)

	claims, err := service.VerifyToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestService_VerifyToken_KeyAgedOut(t *testing.T) {
	config := DefaultConfig()
	config.AccessTokenTTL = 100 * time.Hour // outlives the key retention window

	service, _, mr, cleanup := setupServiceTest(t, config)
	defer cleanup()

	ctx := context.Background()

	pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	mr.FastForward(49 * time.Hour)

	_, err = service.VerifyToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_SessionCapEvictsOldest(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	var pairs []*TokenPair
	for i := 0; i < 6; i++ {
		pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
		require.NoError(t, err)
		pairs = append(pairs, pair)
		time.Sleep(5 * time.Millisecond) // distinct created_at ordering
	}

	// Exactly the oldest session is gone.
	_, err := service.GetSession(ctx, pairs[0].SessionID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, pair := range pairs[1:] {
		_, err := service.GetSession(ctx, pair.SessionID)
		require.NoError(t, err)
	}

	members, err := service.store.SetMembers(ctx, userSessionsKey("u1"))
	require.NoError(t, err)
	assert.Len(t, members, 5)
}

func TestService_EnforceSessionLimits_PrunesStaleIndex(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	// Simulate a session record that expired underneath its index entry.
	require.NoError(t, service.store.SetAdd(ctx, userSessionsKey("u1"), "ghost"))

	require.NoError(t, service.EnforceSessionLimits(ctx, "u1"))

	members, err := service.store.SetMembers(ctx, userSessionsKey("u1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{pair.SessionID}, members)
}

func TestService_RevokeAllUserSessions(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		pair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
		require.NoError(t, err)
		pairs = append(pairs, pair)
	}

	// An unrelated user's session must survive.
	otherPair, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u2"})
	require.NoError(t, err)

	require.NoError(t, service.RevokeAllUserSessions(ctx, "u1"))

	for _, pair := range pairs {
		_, err := service.VerifyToken(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}

	_, err = service.VerifyToken(ctx, otherPair.AccessToken)
	require.NoError(t, err)

	members, err := service.store.SetMembers(ctx, userSessionsKey("u1"))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestService_RefreshMintsNewSession(t *testing.T) {
	service, _, _, cleanup := setupServiceTest(t, DefaultConfig())
	defer cleanup()

	ctx := context.Background()

	first, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: "u1"})
	require.NoError(t, err)

	refresh, err := service.VerifyToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, TokenTypeRefresh, refresh.TokenType)

	// The route layer calls CreateTokens again after verifying a refresh
	// token; that issues a brand-new session.
	second, err := service.CreateTokens(ctx, CreateTokensRequest{UserID: refresh.Subject})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}
