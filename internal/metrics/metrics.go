// Package metrics exposes Prometheus counters for the auth flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	TokenRotations  *prometheus.CounterVec
	SessionsRevoked *prometheus.CounterVec
}

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Scope label values for revocations.
const (
	ScopeSingle = "single"
	ScopeOthers = "others"
	ScopeLogout = "logout"
)

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		TokenRotations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_rotations_total",
			Help: "Refresh token rotations by result.",
		}, []string{"result"}),
		SessionsRevoked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Session revocations by scope.",
		}, []string{"scope"}),
	}
}
