package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	log, err := New("debug", true)
	if err != nil {
		t.Fatal(err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level to be enabled")
	}

	log, err = New(" warn ", false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info must be disabled at warn level")
	}

	if _, err := New("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestTruncateForLog(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"  Sầu riêng Ri6  ", 20, "Sầu riêng Ri6"},
		{"Sầu riêng Ri6", 3, "Sầu..."},
		{"anything", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncateForLog(tc.in, tc.limit); got != tc.want {
			t.Errorf("TruncateForLog(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestWithEncoder(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithEncoder(zap.New(core), " gemini ", "").Info("encoded")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx[FieldProvider] != "gemini" {
		t.Errorf("expected provider gemini, got %v", ctx[FieldProvider])
	}
	if _, ok := ctx[FieldModel]; ok {
		t.Error("empty model must be omitted")
	}

	// A nil logger falls back to a no-op logger.
	WithEncoder(nil, "hash", "hash-trigram").Info("no panic")
}
