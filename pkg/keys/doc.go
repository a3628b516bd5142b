// Package keys manages the RSA signing key lifecycle for token issuance.
//
// # Overview
//
// The Manager owns keypair generation, rotation, retention, and JWKS
// publication. Exactly one key is "current" at any time; it lives in the
// shared store under a well-known key so every process instance sees the
// same current pointer. Superseded keys remain retrievable by key ID for
// the retention window so tokens they signed keep verifying.
//
// # Store layout
//
//	jwt:current_key   - JSON key material for the active signing key
//	jwt:key:<key_id>  - JSON key material, one record per live key
//	jwt:last_rotation - RFC 3339 timestamp of the last rotation
//
// All three records carry TTL = retention period (default 48h), so expired
// keys disappear from the store without a sweeper.
//
// # Rotation
//
// A cron-driven scheduler checks hourly whether the rotation interval
// (default 24h) has elapsed and generates a fresh keypair when it has.
// Store failures are logged and retried after a short backoff; the
// scheduler never crashes the process and never blocks verification,
// which always reads the store directly.
package keys
