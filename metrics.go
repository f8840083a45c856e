package storeauth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricID names an engine counter.
type MetricID uint8

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInFailure
	MetricSignInRateLimited
	MetricSignUp
	MetricMFARequired
	MetricMFAFailure
	MetricBackupCodeUsed
	MetricMFAEnabled
	MetricMFADisabled
	MetricSessionCreated
	MetricSessionRevoked
	MetricActionTokenIssued
	MetricActionTokenReused
	MetricActionTokenRejected
	MetricOAuthSignIn
	MetricOAuthFailure
	MetricOAuthLinked
	MetricPasswordReset
	MetricPasswordChanged
	MetricStatusChanged
	MetricIdentityCleared

	metricCount
)

var metricNames = [metricCount]string{
	MetricSignInSuccess:       "sign_in_success",
	MetricSignInFailure:       "sign_in_failure",
	MetricSignInRateLimited:   "sign_in_rate_limited",
	MetricSignUp:              "sign_up",
	MetricMFARequired:         "mfa_required",
	MetricMFAFailure:          "mfa_failure",
	MetricBackupCodeUsed:      "backup_code_used",
	MetricMFAEnabled:          "mfa_enabled",
	MetricMFADisabled:         "mfa_disabled",
	MetricSessionCreated:      "session_created",
	MetricSessionRevoked:      "session_revoked",
	MetricActionTokenIssued:   "action_token_issued",
	MetricActionTokenReused:   "action_token_reused",
	MetricActionTokenRejected: "action_token_rejected",
	MetricOAuthSignIn:         "oauth_sign_in",
	MetricOAuthFailure:        "oauth_failure",
	MetricOAuthLinked:         "oauth_linked",
	MetricPasswordReset:       "password_reset",
	MetricPasswordChanged:     "password_changed",
	MetricStatusChanged:       "status_changed",
	MetricIdentityCleared:     "identity_cleared",
}

func (id MetricID) String() string {
	if id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics exports engine counters and operation latency to Prometheus. A nil
// *Metrics records nothing.
type Metrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	dropped *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on reg. Registering twice on the
// same registry reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storeauth",
		Name:      "events_total",
		Help:      "Authentication events by type.",
	}, []string{"event"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storeauth",
		Name:      "operation_duration_seconds",
		Help:      "Engine operation latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op", "outcome"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storeauth",
		Name:      "audit_dropped_total",
		Help:      "Audit events dropped because the dispatcher buffer was full.",
	}, []string{"type"})

	var err error
	if events, err = register(reg, events); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if dropped, err = register(reg, dropped); err != nil {
		return nil, err
	}

	m := &Metrics{events: events, latency: latency, dropped: dropped}
	for id := MetricID(0); id < metricCount; id++ {
		m.events.WithLabelValues(id.String())
	}
	return m, nil
}

// register returns the already registered collector when reg has one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

func (m *Metrics) Add(id MetricID, n int) {
	if m == nil || n <= 0 || id >= metricCount {
		return
	}
	m.events.WithLabelValues(id.String()).Add(float64(n))
}

// Observe records the latency of op. outcome is "ok" or the error kind.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.latency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// AuditDropped counts one discarded audit event of the given type.
func (m *Metrics) AuditDropped(eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(eventType).Inc()
}
