// Package tokens issues and verifies signed access and refresh tokens and
// owns the server-tracked sessions that back revocation.
//
// # Issuance
//
// CreateTokens signs an access token (15m) and a refresh token (7d) with
// the current RSA key; the key ID travels in the token header. Both tokens
// share one session ID. The session record (TTL = session timeout) is
// indexed under the user's active-session set, and the per-user session
// cap is enforced by evicting the oldest sessions first.
//
// # Verification
//
// VerifyToken resolves the public key named by the token header's kid
// (historical keys included), checks signature, expiry, not-before, and
// issuer, and then requires the token's session to still exist in the
// store. A cryptographically valid token whose session was revoked is
// rejected.
//
// Every verification failure mode collapses to ErrInvalidToken at the API
// boundary. The specific cause (expired, bad signature, unknown key,
// revoked session) is logged only, so callers cannot probe session state
// through error differences.
package tokens
