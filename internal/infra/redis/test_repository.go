package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"training-gate-service/internal/domain"
	"training-gate-service/internal/infra/memory"
)

// TestRepository caches test definitions in Redis and falls back to a loader on cache miss.
// Tests are stored as: SET test:{testID} {json} EX ttl
type TestRepository struct {
	client *redis.Client
	loader memory.TestLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewTestRepository(client *redis.Client, loader memory.TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	if test, ok := r.cached(ctx, testID); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if test, ok := r.cached(ctx, testID); ok {
			return test, nil
		}
		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}
		r.store(ctx, test)
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// ListTests asks the loader every time and warms the per-test cache with what it returns.
func (r *TestRepository) ListTests(ctx context.Context, programID string) ([]domain.Test, error) {
	tests, err := r.loader.LoadProgramTests(ctx, programID)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		r.store(ctx, t)
	}
	return tests, nil
}

// SaveTest writes the replacement through to the loader, then deletes the cached copy.
func (r *TestRepository) SaveTest(ctx context.Context, test domain.Test) error {
	if err := r.loader.SaveTest(ctx, test); err != nil {
		return err
	}
	if err := r.Invalidate(ctx, test.ID); err != nil {
		return fmt.Errorf("invalidate cached test %s: %w", test.ID, err)
	}
	return nil
}

// Invalidate drops a cached test after it has been replaced.
func (r *TestRepository) Invalidate(ctx context.Context, testID string) error {
	r.sf.Forget(testID)
	return r.client.Del(ctx, testKey(testID)).Err()
}

// cached treats any Redis failure as a miss so the loader stays authoritative.
func (r *TestRepository) cached(ctx context.Context, testID string) (domain.Test, bool) {
	raw, err := r.client.Get(ctx, testKey(testID)).Bytes()
	if err != nil {
		return domain.Test{}, false
	}
	var test domain.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		return domain.Test{}, false
	}
	return test, true
}

func (r *TestRepository) store(ctx context.Context, test domain.Test) {
	raw, err := json.Marshal(test)
	if err != nil {
		return
	}
	// best-effort: a failed write only means the next read goes to the loader
	_ = r.client.Set(ctx, testKey(test.ID), raw, r.ttlWithJitter()).Err()
}

func testKey(testID string) string {
	return "test:" + testID
}

func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
