package keys

import (
	"encoding/base64"
	"math/big"
)

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a JSON Web Key Set as served to external verifiers.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// jwkFromMaterial converts stored key material to its public JWK form.
func jwkFromMaterial(material *KeyMaterial) (JWK, error) {
	pub, err := material.RSAPublicKey()
	if err != nil {
		return JWK{}, err
	}

	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: material.KeyID,
		Alg: material.Algorithm,
		N:   base64URLUint(pub.N),
		E:   base64URLUint(big.NewInt(int64(pub.E))),
	}, nil
}

// base64URLUint encodes a big-endian integer per RFC 7518 §2.
func base64URLUint(v *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(v.Bytes())
}
