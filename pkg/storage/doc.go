// Package storage provides the shared keyed store backing the trust core.
//
// All durable state in trustcore (signing keys, sessions, roles, role
// assignments, cached permission sets) lives behind the Store interface.
// The production implementation is Redis; tests run against miniredis.
//
// Every operation takes a context and is bounded by the configured
// operation timeout. A miss is reported as ErrNotFound, never as an empty
// value, so callers can distinguish "absent" from "empty".
package storage
