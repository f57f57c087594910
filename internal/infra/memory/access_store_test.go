package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
)

func TestAccessStoreInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewAccessStore()

	if err := store.InsertAccess(ctx, domain.NewAccessRecord("p1", "s1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.UpdateAccess(ctx, "p1", "s1", map[domain.Flag]bool{domain.FlagPreTestOpen: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// A second insert must not reset flags.
	if err := store.InsertAccess(ctx, domain.NewAccessRecord("p1", "s1")); err != nil {
		t.Fatalf("insert again: %v", err)
	}

	r, ok, err := store.GetAccess(ctx, "p1", "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !r.PreTestOpen {
		t.Fatalf("expected pre_test_open to survive re-insert")
	}
}

func TestAccessStoreUpdateMissing(t *testing.T) {
	store := NewAccessStore()
	err := store.UpdateAccess(context.Background(), "p1", "s1", map[domain.Flag]bool{domain.FlagFeedbackDone: true})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccessStoreUpdateSessionCountsModified(t *testing.T) {
	ctx := context.Background()
	store := NewAccessStore()
	for _, p := range []string{"p1", "p2", "p3"} {
		_ = store.InsertAccess(ctx, domain.NewAccessRecord(p, "s1"))
	}
	_ = store.InsertAccess(ctx, domain.NewAccessRecord("p9", "s2"))
	_ = store.UpdateAccess(ctx, "p2", "s1", map[domain.Flag]bool{domain.FlagPostTestOpen: true})

	n, err := store.UpdateSessionAccess(ctx, "s1", map[domain.Flag]bool{domain.FlagPostTestOpen: true})
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 modified records, got %d", n)
	}

	other, _, _ := store.GetAccess(ctx, "p9", "s2")
	if other.PostTestOpen {
		t.Fatalf("expected other session untouched")
	}

	records, _ := store.FindAccess(ctx, "s1")
	if len(records) != 3 || records[0].ParticipantID != "p1" {
		t.Fatalf("expected 3 ordered records, got %+v", records)
	}
}

func TestAccessStoreConcurrentFlagUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewAccessStore()
	catalog := NewCatalog()
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
