package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// KeyMaterial is the stored representation of one RSA keypair.
type KeyMaterial struct {
	KeyID      string    `json:"key_id"`
	Algorithm  string    `json:"algorithm"`
	PrivateKey string    `json:"private_key"` // PEM, PKCS#8
	PublicKey  string    `json:"public_key"`  // PEM, PKIX
	CreatedAt  time.Time `json:"created_at"`
}

// RSAPrivateKey parses the PEM-encoded private key.
func (m *KeyMaterial) RSAPrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(m.PrivateKey))
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block in private key", m.KeyID)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: failed to parse private key: %w", m.KeyID, err)
	}

	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %s: private key is not RSA", m.KeyID)
	}
	return priv, nil
}

// RSAPublicKey parses the PEM-encoded public key.
func (m *KeyMaterial) RSAPublicKey() (*rsa.PublicKey, error) {
	return parsePublicKeyPEM(m.PublicKey, m.KeyID)
}

func parsePublicKeyPEM(pemData, keyID string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block in public key", keyID)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: failed to parse public key: %w", keyID, err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %s: public key is not RSA", keyID)
	}
	return pub, nil
}
