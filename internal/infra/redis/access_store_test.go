package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
	"training-gate-service/internal/infra/memory"
)

func newTestStore(t *testing.T) (*AccessStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewAccessStore(newClient(mr)), mr
}

func TestAccessStoreInsertKeepsExistingFlags(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if err := store.InsertAccess(ctx, domain.NewAccessRecord("p1", "s1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !mr.Exists("access:s1:p1") {
		t.Fatalf("expected record hash to be set")
	}
	if err := store.UpdateAccess(ctx, "p1", "s1", map[domain.Flag]bool{domain.FlagPreTestOpen: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.InsertAccess(ctx, domain.NewAccessRecord("p1", "s1")); err != nil {
		t.Fatalf("insert again: %v", err)
	}

	r, ok, err := store.GetAccess(ctx, "p1", "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !r.PreTestOpen || r.ParticipantID != "p1" || r.SessionID != "s1" {
		t.Fatalf("expected insert to leave the released flag, got %+v", r)
	}
}

func TestAccessStoreMissingRecord(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, ok, err := store.GetAccess(ctx, "p1", "s1"); ok || err != nil {
		t.Fatalf("expected missing record, got ok=%v err=%v", ok, err)
	}
	err := store.UpdateAccess(ctx, "p1", "s1", map[domain.Flag]bool{domain.FlagFeedbackDone: true})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccessStoreSessionUpdateAndFind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, p := range []string{"p2", "p1", "p3"} {
		if err := store.InsertAccess(ctx, domain.NewAccessRecord(p, "s1")); err != nil {
			t.Fatalf("insert %s: %v", p, err)
		}
	}
	_ = store.InsertAccess(ctx, domain.NewAccessRecord("p1", "other"))
	_ = store.UpdateAccess(ctx, "p2", "s1", map[domain.Flag]bool{domain.FlagChecklistOpen: true})

	n, err := store.UpdateSessionAccess(ctx, "s1", map[domain.Flag]bool{domain.FlagChecklistOpen: true})
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 modified, got %d", n)
	}

	records, err := store.FindAccess(ctx, "s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if records[i].ParticipantID != want || !records[i].ChecklistOpen {
			t.Fatalf("record %d: unexpected %+v", i, records[i])
		}
	}

	other, _, _ := store.GetAccess(ctx, "p1", "other")
	if other.ChecklistOpen {
		t.Fatalf("expected other session untouched")
	}
}

func TestAccessStoreFindEmptySession(t *testing.T) {
	store, _ := newTestStore(t)
	records, err := store.FindAccess(context.Background(), "nope")
	if err != nil || len(records) != 0 {
		t.Fatalf("expected no records, got %v, %v", records, err)
	}
}

func TestAccessStoreConcurrentFlagUpdates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	catalog := memory.NewCatalog()
	catalog.PutSession(domain.Session{ID: "s1", ProgramID: "prog-1", ParticipantIDs: []string{"p1"}})
	gate := app.NewAccessGate(store, catalog)

	const rounds = 8
	var wg sync.WaitGroup
	errs := make(chan error, rounds*len(domain.Stages)*2)
	for i := 0; i < rounds; i++ {
		for _, stage := range domain.Stages {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := gate.SetReleased(ctx, "s1", stage, true, nil); err != nil {
					errs <- err
				}
			}()
			go func() {
				defer wg.Done()
				if err := gate.MarkCompleted(ctx, "p1", "s1", stage); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	record, ok, err := store.GetAccess(ctx, "p1", "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	for _, stage := range domain.Stages {
		if !record.Released(stage) || !record.Completed(stage) {
			t.Fatalf("expected %s released and completed, got %+v", stage, record)
		}
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
