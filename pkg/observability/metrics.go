package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trust core.
//
// A nil *Metrics is valid everywhere: every recording method no-ops, so
// library consumers that do not care about metrics pass nothing.
type Metrics struct {
	// Token metrics
	TokensIssuedTotal        *prometheus.CounterVec
	TokenVerificationsTotal  *prometheus.CounterVec

	// Key lifecycle metrics
	KeyRotationsTotal        prometheus.Counter
	KeyRotationFailuresTotal prometheus.Counter

	// Session metrics
	SessionsCreatedTotal  prometheus.Counter
	SessionsRevokedTotal  prometheus.Counter
	SessionsEvictedTotal  prometheus.Counter

	// Permission metrics
	PermissionChecksTotal    *prometheus.CounterVec
	PermissionCacheHitsTotal   prometheus.Counter
	PermissionCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all trust core metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_tokens_issued_total",
				Help: "Total number of tokens issued by type",
			},
			[]string{"token_type"},
		),
		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_token_verifications_total",
				Help: "Total number of token verifications by outcome",
			},
			[]string{"outcome"},
		),
		KeyRotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_key_rotations_total",
				Help: "Total number of completed signing key rotations",
			},
		),
		KeyRotationFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_key_rotation_failures_total",
				Help: "Total number of failed rotation checks",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_sessions_revoked_total",
				Help: "Total number of sessions revoked",
			},
		),
		SessionsEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_sessions_evicted_total",
				Help: "Total number of sessions evicted by the per-user cap",
			},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustcore_permission_checks_total",
				Help: "Total number of permission checks by decision",
			},
			[]string{"decision"},
		),
		PermissionCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_permission_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
		),
		PermissionCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trustcore_permission_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
		),
	}

	registry.MustRegister(
		m.TokensIssuedTotal,
		m.TokenVerificationsTotal,
		m.KeyRotationsTotal,
		m.KeyRotationFailuresTotal,
		m.SessionsCreatedTotal,
		m.SessionsRevokedTotal,
		m.SessionsEvictedTotal,
		m.PermissionChecksTotal,
		m.PermissionCacheHitsTotal,
		m.PermissionCacheMissesTotal,
	)

	return m
}

// RecordTokenIssued increments the issued counter for a token type.
func (m *Metrics) RecordTokenIssued(tokenType string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(tokenType).Inc()
}

// RecordTokenVerification increments the verification counter for an outcome.
func (m *Metrics) RecordTokenVerification(outcome string) {
	if m == nil {
		return
	}
	m.TokenVerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordKeyRotation increments the rotation counter.
func (m *Metrics) RecordKeyRotation() {
	if m == nil {
		return
	}
	m.KeyRotationsTotal.Inc()
}

// RecordKeyRotationFailure increments the failed rotation check counter.
func (m *Metrics) RecordKeyRotationFailure() {
	if m == nil {
		return
	}
	m.KeyRotationFailuresTotal.Inc()
}

// RecordSessionCreated increments the session creation counter.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
}

// RecordSessionRevoked increments the session revocation counter.
func (m *Metrics) RecordSessionRevoked() {
	if m == nil {
		return
	}
	m.SessionsRevokedTotal.Inc()
}

// RecordSessionEvicted increments the cap eviction counter.
func (m *Metrics) RecordSessionEvicted() {
	if m == nil {
		return
	}
	m.SessionsEvictedTotal.Inc()
}

// RecordPermissionCheck increments the check counter for a decision.
func (m *Metrics) RecordPermissionCheck(allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.PermissionChecksTotal.WithLabelValues(decision).Inc()
}

// RecordPermissionCacheHit increments the cache hit counter.
func (m *Metrics) RecordPermissionCacheHit() {
	if m == nil {
		return
	}
	m.PermissionCacheHitsTotal.Inc()
}

// RecordPermissionCacheMiss increments the cache miss counter.
func (m *Metrics) RecordPermissionCacheMiss() {
	if m == nil {
		return
	}
	m.PermissionCacheMissesTotal.Inc()
}
