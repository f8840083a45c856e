package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromFallsBackToGlobal(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatal("expected non-nil logger")
	}

	core, logs := observer.New(zapcore.InfoLevel)
	scoped := zap.New(core)
	ctx := ToContext(context.Background(), scoped)
	From(ctx).Info("hello", UserID("u1"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["user_id"]; got != "u1" {
		t.Fatalf("user_id = %v", got)
	}
}

func TestNewProductionBuilds(t *testing.T) {
	l, err := New(Config{Env: "production", Level: "debug", Service: "storeauth"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level enabled")
	}
}
