package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}

	core := GetLogger().Core()
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn level should be enabled")
	}
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info level should be disabled")
	}
}

func TestGetLogger_NeverNil(t *testing.T) {
	SetLogger(nil)
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
}

func TestLogProbe(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogProbe("ping", "http://10.0.0.5/", 1, "rejected", errors.New("connection refused"))

	entries := logs.FilterMessage("Probe finished").All()
	if len(entries) != 1 {
		t.Fatalf("got %d probe entries, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["url"] != "http://10.0.0.5/" {
		t.Errorf("url field = %v", fields["url"])
	}
	if fields["outcome"] != "rejected" {
		t.Errorf("outcome field = %v", fields["outcome"])
	}
	if fields["error"] != "connection refused" {
		t.Errorf("error field = %v", fields["error"])
	}
}

func TestLogSession(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogSession("abc", "started", zap.Int("workers", 3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["session"] != "abc" || fields["event"] != "started" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["workers"] != int64(3) {
		t.Errorf("workers field = %v (%T)", fields["workers"], fields["workers"])
	}
}
