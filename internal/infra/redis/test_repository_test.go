package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"training-gate-service/internal/domain"
	"training-gate-service/internal/infra/memory"
)

func TestTestRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{TestLoader: sampleCatalog()}
	repo := NewTestRepository(newClient(mr), loader, time.Minute)

	test, err := repo.GetTest(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("test:post-1") {
		t.Fatalf("expected test cached in redis")
	}
	if ttl := mr.TTL("test:post-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with up to 10%% jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetTest(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get cached test: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.Questions[0].CorrectOptionIndex != test.Questions[0].CorrectOptionIndex || cached.Type != domain.TestPost {
		t.Fatalf("expected cached test to keep its answer key, got %+v", cached)
	}

	if err := repo.Invalidate(context.Background(), "post-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetTest(context.Background(), "post-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestTestRepositorySaveDropsCachedCopy(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	repo := NewTestRepository(newClient(mr), sampleCatalog(), time.Minute)
	if _, err := repo.GetTest(ctx, "post-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if !mr.Exists("test:post-1") {
		t.Fatalf("expected test cached in redis")
	}

	replaced := domain.Test{
		ID:        "post-1",
		ProgramID: "prog-1",
		Type:      domain.TestPost,
		Questions: []domain.Question{{Text: "When do you signal?", Options: []string{"early", "late"}, CorrectOptionIndex: 0}},
	}
	if err := repo.SaveTest(ctx, replaced); err != nil {
		t.Fatalf("save test: %v", err)
	}
	if mr.Exists("test:post-1") {
		t.Fatalf("expected cached copy to be deleted")
	}

	got, err := repo.GetTest(ctx, "post-1")
	if err != nil {
		t.Fatalf("get replaced test: %v", err)
	}
	if got.Questions[0].Text != "When do you signal?" {
		t.Fatalf("expected replacement, got %+v", got.Questions)
	}
}

func TestTestRepositoryFallsBackWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	repo := NewTestRepository(client, sampleCatalog(), time.Minute)
	if _, err := repo.GetTest(context.Background(), "pre-1"); err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
	tests, err := repo.ListTests(context.Background(), "prog-1")
	if err != nil || len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %v, %v", tests, err)
	}
	if _, err := repo.GetTest(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	memory.TestLoader
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	l.calls++
	return l.TestLoader.LoadTest(ctx, testID)
}

func sampleCatalog() *memory.Catalog {
	c := memory.NewCatalog()
	c.PutTest(domain.Test{
		ID:        "pre-1",
		ProgramID: "prog-1",
		Type:      domain.TestPre,
		Questions: []domain.Question{{Text: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectOptionIndex: 1}},
	})
	c.PutTest(domain.Test{
		ID:        "post-1",
		ProgramID: "prog-1",
		Type:      domain.TestPost,
		Questions: []domain.Question{{Text: "Which side do you overtake on?", Options: []string{"near", "far"}, CorrectOptionIndex: 1}},
	})
	return c
}
