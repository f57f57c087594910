package cli

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"training-gate-service/internal/config"
	"training-gate-service/internal/infra/memory"
	infraredis "training-gate-service/internal/infra/redis"
)

func TestBuildDepsDefaultsToMemory(t *testing.T) {
	deps, cleanup, err := buildDeps(context.Background(), config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("build deps: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Access.(*memory.AccessStore); !ok {
		t.Fatalf("expected memory access store, got %T", deps.Access)
	}
	if _, ok := deps.Tests.(*memory.TestRepository); !ok {
		t.Fatalf("expected memory test cache, got %T", deps.Tests)
	}
	if _, err := deps.Sessions.GetSession(context.Background(), "session-1"); err != nil {
		t.Fatalf("expected sample session: %v", err)
	}
}

func TestBuildDepsUsesRedisWhenConfigured(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	var cfg config.Config
	cfg.Redis.Addr = mr.Addr()
	deps, cleanup, err := buildDeps(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build deps: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Access.(*infraredis.AccessStore); !ok {
		t.Fatalf("expected redis access store, got %T", deps.Access)
	}
	if _, ok := deps.Tests.(*infraredis.TestRepository); !ok {
		t.Fatalf("expected redis test cache, got %T", deps.Tests)
	}
}
