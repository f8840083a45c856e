package storeauth

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineMetricsCountEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, func(_ *Config, b *Builder) { b.WithMetrics(reg) })
	ctx := context.Background()

	env.signUp(t, "metrics@example.com")
	env.signIn(t, "metrics@example.com")
	_, _ = env.engine.SignIn(ctx, SignInRequest{Email: "metrics@example.com", Password: "@Wrong1234"})

	events := env.engine.metrics.events
	checks := map[MetricID]float64{
		MetricSignUp:            1,
		MetricSignInSuccess:     1,
		MetricSignInFailure:     1,
		MetricSessionCreated:    1,
		MetricActionTokenIssued: 1,
		MetricMFAFailure:        0,
	}
	for id, want := range checks {
		if got := testutil.ToFloat64(events.WithLabelValues(id.String())); got != want {
			t.Fatalf("%s = %v, want %v", id, got, want)
		}
	}

	if n := testutil.CollectAndCount(env.engine.metrics.latency); n == 0 {
		t.Fatal("expected latency observations")
	}
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	b, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics again: %v", err)
	}
	a.Inc(MetricSignUp)
	if got := testutil.ToFloat64(b.events.WithLabelValues(MetricSignUp.String())); got != 1 {
		t.Fatalf("shared counter = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSignUp)
	m.Add(MetricSessionRevoked, 3)
	m.Observe("op", time.Now(), nil)
	m.AuditDropped("sign_in_failure")
}

func TestAuditDroppedCountsByType(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.AuditDropped(auditEventSignInFailure)
	m.AuditDropped(auditEventSignInFailure)
	m.AuditDropped(auditEventRateLimitTriggered)

	if got := testutil.ToFloat64(m.dropped.WithLabelValues(auditEventSignInFailure)); got != 2 {
		t.Fatalf("sign_in_failure drops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues(auditEventRateLimitTriggered)); got != 1 {
		t.Fatalf("rate_limit_triggered drops = %v, want 1", got)
	}
}
