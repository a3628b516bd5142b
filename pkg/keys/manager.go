package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/observability"
	"github.com/queryforge/trustcore/pkg/storage"
)

const (
	currentKeyKey   = "jwt:current_key"
	keyPrefix       = "jwt:key:"
	lastRotationKey = "jwt:last_rotation"
)

var (
	// ErrNoCurrentKey indicates the manager is uninitialized. Callers must
	// treat this as fatal for token issuance.
	ErrNoCurrentKey = errors.New("keys: no current signing key")

	// ErrKeyNotFound indicates the requested key ID is unknown or has
	// aged out of the retention window.
	ErrKeyNotFound = errors.New("keys: key not found")
)

// Config holds key lifecycle configuration.
type Config struct {
	KeySize          int
	Algorithm        string
	RotationInterval time.Duration
	RetentionPeriod  time.Duration

	// RotationCheckInterval controls how often the scheduler wakes up to
	// test whether the rotation interval has elapsed.
	RotationCheckInterval time.Duration

	// RotationRetryBackoff delays the retry after a failed rotation check.
	RotationRetryBackoff time.Duration
}

// DefaultConfig returns the standard key lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		KeySize:               2048,
		Algorithm:             "RS256",
		RotationInterval:      24 * time.Hour,
		RetentionPeriod:       48 * time.Hour,
		RotationCheckInterval: time.Hour,
		RotationRetryBackoff:  5 * time.Minute,
	}
}

// Manager owns RSA keypair generation, rotation, retention, and JWKS
// publication.
type Manager struct {
	store  storage.Store
	config Config
	log    *logrus.Logger

	// Metrics is optional; a nil value disables recording.
	Metrics *observability.Metrics

	scheduler *cron.Cron

	mu         sync.Mutex
	retryTimer *time.Timer
}

// NewManager creates a key manager backed by the given store.
func NewManager(store storage.Store, config Config, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	if config.KeySize == 0 {
		config = DefaultConfig()
	}
	return &Manager{
		store:  store,
		config: config,
		log:    log,
	}
}

// Initialize ensures a current signing key exists, generating the initial
// keypair on first start.
func (m *Manager) Initialize(ctx context.Context) error {
	_, err := m.CurrentKey(ctx)
	if errors.Is(err, ErrNoCurrentKey) {
		if _, err := m.GenerateKeyPair(ctx); err != nil {
			return fmt.Errorf("failed to generate initial key pair: %w", err)
		}
		m.log.Info("Generated initial RSA key pair")
		return nil
	}
	return err
}

// GenerateKeyPair creates a fresh RSA keypair, stores it as the current
// signing key and under its own key ID, and records the rotation timestamp.
func (m *Manager) GenerateKeyPair(ctx context.Context) (*KeyMaterial, error) {
	priv, err := rsa.GenerateKey(rand.Reader, m.config.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	material := &KeyMaterial{
		KeyID:      uuid.NewString(),
		Algorithm:  m.config.Algorithm,
		PrivateKey: string(privPEM),
		PublicKey:  string(pubPEM),
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(material)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key material: %w", err)
	}

	retention := m.config.RetentionPeriod
	if err := m.store.Set(ctx, currentKeyKey, string(data), retention); err != nil {
		return nil, fmt.Errorf("failed to store current key: %w", err)
	}
	if err := m.store.Set(ctx, keyPrefix+material.KeyID, string(data), retention); err != nil {
		return nil, fmt.Errorf("failed to store key %s: %w", material.KeyID, err)
	}
	if err := m.store.Set(ctx, lastRotationKey, material.CreatedAt.Format(time.RFC3339), retention); err != nil {
		return nil, fmt.Errorf("failed to store rotation timestamp: %w", err)
	}

	m.Metrics.RecordKeyRotation()
	m.log.WithField("key_id", material.KeyID).Info("Generated new RSA key pair")
	return material, nil
}

// CurrentKey returns the active signing key material, or ErrNoCurrentKey.
func (m *Manager) CurrentKey(ctx context.Context) (*KeyMaterial, error) {
	data, err := m.store.Get(ctx, currentKeyKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoCurrentKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current key: %w", err)
	}

	var material KeyMaterial
	if err := json.Unmarshal([]byte(data), &material); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current key: %w", err)
	}
	return &material, nil
}

// PublicKey returns the public key for a specific, possibly historical,
// key ID. An unknown or aged-out ID yields ErrKeyNotFound.
func (m *Manager) PublicKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	data, err := m.store.Get(ctx, keyPrefix+keyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", keyID, err)
	}

	var material KeyMaterial
	if err := json.Unmarshal([]byte(data), &material); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key %s: %w", keyID, err)
	}
	return material.RSAPublicKey()
}

// JWKS enumerates all non-expired stored keys as a JSON Web Key Set.
func (m *Manager) JWKS(ctx context.Context) (*JWKS, error) {
	storeKeys, err := m.store.Scan(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	set := &JWKS{Keys: []JWK{}}
	for _, storeKey := range storeKeys {
		data, err := m.store.Get(ctx, storeKey)
		if errors.Is(err, storage.ErrNotFound) {
			// Expired between scan and get.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", storeKey, err)
		}

		var material KeyMaterial
		if err := json.Unmarshal([]byte(data), &material); err != nil {
			m.log.WithError(err).WithField("store_key", storeKey).Warn("Skipping unreadable key material")
			continue
		}

		jwk, err := jwkFromMaterial(&material)
		if err != nil {
			m.log.WithError(err).WithField("key_id", material.KeyID).Warn("Skipping unconvertible key")
			continue
		}
		set.Keys = append(set.Keys, jwk)
	}

	return set, nil
}

// StartRotation begins the periodic rotation check. It is safe to call once;
// use StopRotation for a clean shutdown.
func (m *Manager) StartRotation() error {
	if m.scheduler != nil {
		return errors.New("keys: rotation scheduler already started")
	}

	m.scheduler = cron.New()
	spec := fmt.Sprintf("@every %s", m.config.RotationCheckInterval)
	if _, err := m.scheduler.AddFunc(spec, m.rotationCheck); err != nil {
		m.scheduler = nil
		return fmt.Errorf("failed to schedule key rotation: %w", err)
	}

	m.scheduler.Start()
	m.log.WithField("check_interval", m.config.RotationCheckInterval.String()).Info("Key rotation scheduler started")
	return nil
}

// StopRotation stops the scheduler and waits for an in-flight check to
// finish.
func (m *Manager) StopRotation() {
	m.mu.Lock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()

	if m.scheduler != nil {
		ctx := m.scheduler.Stop()
		<-ctx.Done()
		m.scheduler = nil
		m.log.Info("Key rotation scheduler stopped")
	}
}

// rotationCheck runs one scheduler tick. Failures are logged and retried
// after a backoff; they never propagate.
func (m *Manager) rotationCheck() {
	ctx := context.Background()
	if err := m.RotateIfDue(ctx); err != nil {
		m.Metrics.RecordKeyRotationFailure()
		m.log.WithError(err).Error("Key rotation check failed")
		m.scheduleRetry()
	}
}

func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.retryTimer != nil {
		return
	}
	m.retryTimer = time.AfterFunc(m.config.RotationRetryBackoff, func() {
		m.mu.Lock()
		m.retryTimer = nil
		m.mu.Unlock()
		m.rotationCheck()
	})
}

// RotateIfDue generates a new keypair when the rotation interval has
// elapsed since the last recorded rotation.
func (m *Manager) RotateIfDue(ctx context.Context) error {
	data, err := m.store.Get(ctx, lastRotationKey)
	if errors.Is(err, storage.ErrNotFound) {
		// Rotation record aged out along with the keys; regenerate.
		_, err := m.GenerateKeyPair(ctx)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to get last rotation timestamp: %w", err)
	}

	lastRotation, err := time.Parse(time.RFC3339, data)
	if err != nil {
		return fmt.Errorf("invalid rotation timestamp %q: %w", data, err)
	}

	if time.Since(lastRotation) > m.config.RotationInterval {
		if _, err := m.GenerateKeyPair(ctx); err != nil {
			return err
		}
		m.log.Info("Automatic key rotation completed")
	}
	return nil
}
