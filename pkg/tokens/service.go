package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/keys"
	"github.com/queryforge/trustcore/pkg/observability"
	"github.com/queryforge/trustcore/pkg/storage"
)

// ErrInvalidToken is the single externally visible verification failure.
// The underlying cause (expired, bad signature, unknown key, revoked
// session) is logged but never exposed, so callers cannot use the error
// as an oracle for session state.
var ErrInvalidToken = errors.New("tokens: invalid or expired credentials")

// Config holds token service configuration.
type Config struct {
	Issuer          string
	DefaultAudience []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SessionTimeout     time.Duration
	MaxSessionsPerUser int
}

// DefaultConfig returns the standard token service configuration.
func DefaultConfig() Config {
	return Config{
		Issuer:             "https://trustcore.queryforge.io",
		DefaultAudience:    []string{"api"},
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		SessionTimeout:     8 * time.Hour,
		MaxSessionsPerUser: 5,
	}
}

// Service issues and verifies tokens and manages sessions.
type Service struct {
	store  storage.Store
	keys   *keys.Manager
	config Config
	log    *logrus.Logger

	// Metrics is optional; a nil value disables recording.
	Metrics *observability.Metrics
}

// NewService creates a token service.
func NewService(store storage.Store, keyManager *keys.Manager, config Config, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	if config.AccessTokenTTL == 0 {
		config = DefaultConfig()
	}
	return &Service{
		store:  store,
		keys:   keyManager,
		config: config,
		log:    log,
	}
}

// CreateTokensRequest carries the caller-supplied inputs for issuance.
// Credential verification is assumed to have already succeeded.
type CreateTokensRequest struct {
	UserID    string
	TenantID  string
	Scopes    []string
	Audience  []string
	DeviceID  string
	IPAddress string
}

// TokenPair is the issuance result handed back to the route layer.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	SessionID    string `json:"session_id"`
}

// CreateTokens issues an access/refresh token pair sharing one session.
// It fails when no current signing key exists.
func (s *Service) CreateTokens(ctx context.Context, req CreateTokensRequest) (*TokenPair, error) {
	current, err := s.keys.CurrentKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("token issuance unavailable: %w", err)
	}

	sessionID := uuid.NewString()
	now := time.Now().UTC()

	audience := req.Audience
	if len(audience) == 0 {
		audience = s.config.DefaultAudience
	}

	base := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.UserID,
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		TenantID:  req.TenantID,
		SessionID: sessionID,
		DeviceID:  req.DeviceID,
		IPAddress: req.IPAddress,
	}

	access := base
	access.ID = uuid.NewString()
	access.ExpiresAt = jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL))
	access.TokenType = TokenTypeAccess
	access.Scope = req.Scopes

	refresh := base
	refresh.ID = uuid.NewString()
	refresh.ExpiresAt = jwt.NewNumericDate(now.Add(s.config.RefreshTokenTTL))
	refresh.TokenType = TokenTypeRefresh
	refresh.Scope = []string{"refresh"}

	accessToken, err := s.signClaims(&access, current)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.signClaims(&refresh, current)
	if err != nil {
		return nil, err
	}

	if err := s.storeSession(ctx, sessionID, req, now); err != nil {
		return nil, err
	}

	if err := s.EnforceSessionLimits(ctx, req.UserID); err != nil {
		// An over-cap session list self-heals on the next issuance.
		s.log.WithError(err).WithField("user_id", req.UserID).Error("Failed to enforce session limits")
	}

	s.Metrics.RecordTokenIssued(string(TokenTypeAccess))
	s.Metrics.RecordTokenIssued(string(TokenTypeRefresh))
	s.Metrics.RecordSessionCreated()

	s.log.WithFields(logrus.Fields{
		"user_id":    req.UserID,
		"session_id": sessionID,
		"key_id":     current.KeyID,
	}).Info("Issued token pair")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		SessionID:    sessionID,
	}, nil
}

// signClaims signs a claim set with the given key, embedding its key ID in
// the token header.
func (s *Service) signClaims(claims *Claims, material *keys.KeyMaterial) (string, error) {
	priv, err := material.RSAPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to load signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = material.KeyID

	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns its claims. All verification
// failures surface as ErrInvalidToken; transient store failures propagate
// unwrapped into that sentinel so callers can tell an outage from a bad
// token.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	var storeErr error

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.config.Issuer),
	)

	parsed, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing key ID")
		}

		pub, err := s.keys.PublicKey(ctx, kid)
		if err != nil && !errors.Is(err, keys.ErrKeyNotFound) {
			storeErr = err
		}
		return pub, err
	})
	if err != nil {
		if storeErr != nil {
			s.Metrics.RecordTokenVerification("store_error")
			return nil, fmt.Errorf("token verification failed: %w", storeErr)
		}
		s.Metrics.RecordTokenVerification("invalid")
		s.log.WithError(err).Warn("Token verification failed")
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		s.Metrics.RecordTokenVerification("invalid")
		return nil, ErrInvalidToken
	}

	// A valid signature is not enough: the session must still exist.
	if claims.SessionID != "" {
		_, err := s.store.Get(ctx, sessionKey(claims.SessionID))
		if errors.Is(err, storage.ErrNotFound) {
			s.Metrics.RecordTokenVerification("revoked")
			s.log.WithField("session_id", claims.SessionID).Warn("Token presented for revoked session")
			return nil, ErrInvalidToken
		}
		if err != nil {
			s.Metrics.RecordTokenVerification("store_error")
			return nil, fmt.Errorf("session lookup failed: %w", err)
		}
	}

	s.Metrics.RecordTokenVerification("valid")
	return claims, nil
}

// storeSession persists the session record and indexes it under the
// user's active-session set.
func (s *Service) storeSession(ctx context.Context, sessionID string, req CreateTokensRequest, now time.Time) error {
	session := Session{
		UserID:       req.UserID,
		DeviceID:     req.DeviceID,
		IPAddress:    req.IPAddress,
		CreatedAt:    now,
		LastActivity: now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.store.Set(ctx, sessionKey(sessionID), string(data), s.config.SessionTimeout); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.store.SetAdd(ctx, userSessionsKey(req.UserID), sessionID); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	if err := s.store.Expire(ctx, userSessionsKey(req.UserID), s.config.SessionTimeout); err != nil {
		return fmt.Errorf("failed to expire session index: %w", err)
	}
	return nil
}

// GetSession returns the session record for an ID, or storage.ErrNotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return &session, nil
}

// EnforceSessionLimits evicts the oldest sessions when a user's live
// session count exceeds the cap. Index entries whose session record has
// already expired are pruned along the way.
func (s *Service) EnforceSessionLimits(ctx context.Context, userID string) error {
	members, err := s.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	type sessionAge struct {
		id        string
		createdAt time.Time
	}

	var live []sessionAge
	for _, id := range members {
		data, err := s.store.Get(ctx, sessionKey(id))
		if errors.Is(err, storage.ErrNotFound) {
			// Stale index entry; the record expired underneath it.
			if err := s.store.SetRemove(ctx, userSessionsKey(userID), id); err != nil {
				return fmt.Errorf("failed to prune stale session index: %w", err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load session %s: %w", id, err)
		}

		var session Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return fmt.Errorf("failed to unmarshal session %s: %w", id, err)
		}
		live = append(live, sessionAge{id: id, createdAt: session.CreatedAt})
	}

	if len(live) <= s.config.MaxSessionsPerUser {
		return nil
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].createdAt.Before(live[j].createdAt)
	})

	for _, victim := range live[:len(live)-s.config.MaxSessionsPerUser] {
		if err := s.RevokeSession(ctx, victim.id); err != nil {
			return err
		}
		s.Metrics.RecordSessionEvicted()
		s.log.WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": victim.id,
		}).Info("Evicted session over per-user cap")
	}
	return nil
}

// RevokeSession removes a session and its index entry. Revoking an
// unknown session is a no-op.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	data, err := s.store.Get(ctx, sessionKey(sessionID))
	if err == nil {
		var session Session
		if jsonErr := json.Unmarshal([]byte(data), &session); jsonErr == nil {
			if err := s.store.SetRemove(ctx, userSessionsKey(session.UserID), sessionID); err != nil {
				return fmt.Errorf("failed to remove session from index: %w", err)
			}
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if err := s.store.Delete(ctx, sessionKey(sessionID)); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	s.Metrics.RecordSessionRevoked()
	return nil
}

// RevokeAllUserSessions removes every session for a user, including the
// active-session index.
func (s *Service) RevokeAllUserSessions(ctx context.Context, userID string) error {
	members, err := s.store.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	for _, id := range members {
		if err := s.store.Delete(ctx, sessionKey(id)); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
		s.Metrics.RecordSessionRevoked()
	}

	if err := s.store.Delete(ctx, userSessionsKey(userID)); err != nil {
		return fmt.Errorf("failed to delete session index: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"sessions": len(members),
	}).Info("Revoked all user sessions")
	return nil
}
