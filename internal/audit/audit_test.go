package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) { s.count.Add(1) }

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.gate }

// heldSink reports when the worker is parked inside Emit.
type heldSink struct {
	entered chan struct{}
	gate    chan struct{}
}

func (s *heldSink) Emit(context.Context, Event) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops on nil dispatcher")
	}
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), NewEvent("sign_in", time.Now()))
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("delivered %d events, want 50", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{Type: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherCountsDropsByType(t *testing.T) {
	sink := &heldSink{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	var hooked atomic.Int64
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		OnDrop:     func(Event) { hooked.Add(1) },
	}, sink)

	d.Emit(context.Background(), Event{Type: "sign_in_success"})
	<-sink.entered
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: "sign_in_failure"})
	}
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Type: "rate_limit_triggered"})
	}
	close(sink.gate)
	d.Close()

	byType := d.DroppedByType()
	if byType["rate_limit_triggered"] != 5 {
		t.Fatalf("rate_limit_triggered drops = %d, want 5", byType["rate_limit_triggered"])
	}
	if byType["sign_in_failure"] != 9 {
		t.Fatalf("sign_in_failure drops = %d, want 9", byType["sign_in_failure"])
	}
	if byType["sign_in_success"] != 0 {
		t.Fatalf("sign_in_success drops = %d, want 0", byType["sign_in_success"])
	}
	if uint64(hooked.Load()) != d.Dropped() {
		t.Fatalf("OnDrop calls = %d, Dropped = %d", hooked.Load(), d.Dropped())
	}
}

func TestDispatcherNeverDropsCriticalEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"account_status_changed"},
	}, sink)

	for i := 0; i < 100; i++ {
		d.Emit(context.Background(), Event{Type: "account_status_changed"})
	}
	d.Close()

	if got := sink.count.Load(); got != 100 {
		t.Fatalf("delivered %d critical events, want 100", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("dropped %d critical events", d.Dropped())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, &countingSink{})
	d.Close()
	d.Close()
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Type: "a"})
	d.Emit(context.Background(), Event{Type: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{Type: "c"})
	if time.Since(start) > time.Second {
		t.Fatal("Emit did not return after context deadline")
	}
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Emit(context.Background(), Event{Type: "late"})
	if sink.count.Load() != 0 {
		t.Fatal("expected no delivery after Close")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	ev := NewEvent("password_reset", time.Unix(100, 0))
	ev.UserID = "u1"
	ev.Success = true
	s.Emit(context.Background(), ev)

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "password_reset" || got.UserID != "u1" || !got.Success || got.ID == "" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{Type: "sign_in", Success: true, UserID: "u1"})
	s.Emit(context.Background(), Event{Type: "sign_in", Error: "invalid_credentials", Metadata: map[string]string{"provider": "password"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["meta.provider"] != "password" {
		t.Fatalf("metadata not logged: %v", entries[1].ContextMap())
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected fan-out to both sinks")
	}
}
