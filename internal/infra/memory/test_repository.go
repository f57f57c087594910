package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"training-gate-service/internal/domain"
)

// TestLoader fetches and replaces test definitions in a backing store (e.g., postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.Test, error)
	LoadProgramTests(ctx context.Context, programID string) ([]domain.Test, error)
	SaveTest(ctx context.Context, test domain.Test) error
}

// TestRepository caches tests with TTL to avoid repeated DB hits.
type TestRepository struct {
	loader TestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedTest
}

type cachedTest struct {
	test      domain.Test
	expiresAt time.Time
}

func NewTestRepository(loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTest),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	if test, ok := r.cached(testID); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		if test, ok := r.cached(testID); ok {
			return test, nil
		}
		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}
		r.store(test)
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// ListTests always asks the loader, since programs gain tests, and warms the per-test cache.
func (r *TestRepository) ListTests(ctx context.Context, programID string) ([]domain.Test, error) {
	tests, err := r.loader.LoadProgramTests(ctx, programID)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		r.store(t)
	}
	return tests, nil
}

// SaveTest writes the replacement through to the loader, then drops the cached copy.
func (r *TestRepository) SaveTest(ctx context.Context, test domain.Test) error {
	if err := r.loader.SaveTest(ctx, test); err != nil {
		return err
	}
	r.Invalidate(test.ID)
	return nil
}

// Invalidate drops a cached test after it has been replaced.
func (r *TestRepository) Invalidate(testID string) {
	r.sf.Forget(testID)
	r.mu.Lock()
	delete(r.cache, testID)
	r.mu.Unlock()
}

func (r *TestRepository) cached(testID string) (domain.Test, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[testID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Test{}, false
	}
	return entry.test, true
}

func (r *TestRepository) store(test domain.Test) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[test.ID] = cachedTest{
		test:      test,
		expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
	}
}

func (r *TestRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
