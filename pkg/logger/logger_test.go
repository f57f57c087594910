package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %v, got %v", raw, want, got)
		}
	}

	if _, err := ParseLevel("loud"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Fatalf("expected invalid level error, got %v", err)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&Config{Format: "xml"}, DefaultServiceName)
	if !errors.Is(err, ErrInvalidLogFormat) {
		t.Fatalf("expected invalid format error, got %v", err)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	l, err := New(&Config{Level: "debug", Format: "json", Output: path}, DefaultServiceName)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Debug("hello")
	_ = l.Sync()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}
}
