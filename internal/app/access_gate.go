package app

import (
	"context"
	"fmt"

	"training-gate-service/internal/domain"
)

// AccessGate is the single source of truth for what a participant may do next in a session
// and what they have already done.
type AccessGate struct {
	store    AccessStore
	sessions SessionRepository
}

func NewAccessGate(store AccessStore, sessions SessionRepository) *AccessGate {
	return &AccessGate{store: store, sessions: sessions}
}

// GetOrCreate returns the record for the pair, inserting the all-false default on first use.
// Repeated calls have no effect beyond the first insert.
func (g *AccessGate) GetOrCreate(ctx context.Context, participantID, sessionID string) (domain.AccessRecord, error) {
	record, ok, err := g.store.GetAccess(ctx, participantID, sessionID)
	if err != nil {
		return domain.AccessRecord{}, fmt.Errorf("get access: %w", err)
	}
	if ok {
		return record, nil
	}

	if err := g.store.InsertAccess(ctx, domain.NewAccessRecord(participantID, sessionID)); err != nil {
		return domain.AccessRecord{}, fmt.Errorf("insert access: %w", err)
	}
	// Re-read: a concurrent writer may have inserted and flipped flags first.
	record, ok, err = g.store.GetAccess(ctx, participantID, sessionID)
	if err != nil {
		return domain.AccessRecord{}, fmt.Errorf("get access: %w", err)
	}
	if !ok {
		return domain.NewAccessRecord(participantID, sessionID), nil
	}
	return record, nil
}

// SetReleased toggles a stage's release flag for the given participants, or for the whole
// roster when participantIDs is nil. It returns how many records were updated; a failure
// part way through is returned alongside the count and nothing is rolled back.
func (g *AccessGate) SetReleased(ctx context.Context, sessionID string, stage domain.Stage, enabled bool, participantIDs []string) (int, error) {
	session, err := g.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	targets := participantIDs
	if targets == nil {
		targets = session.ParticipantIDs
	}

	fields := map[domain.Flag]bool{stage.ReleaseFlag(): enabled}
	updated := 0
	for _, participantID := range targets {
		if _, err := g.GetOrCreate(ctx, participantID, sessionID); err != nil {
			return updated, fmt.Errorf("release %s for %s: %w", stage, participantID, err)
		}
		if err := g.store.UpdateAccess(ctx, participantID, sessionID, fields); err != nil {
			return updated, fmt.Errorf("release %s for %s: %w", stage, participantID, err)
		}
		updated++
	}
	return updated, nil
}

// ReleaseExisting opens a stage on every access record the session already has, without
// creating missing ones. It returns the number of records that changed.
func (g *AccessGate) ReleaseExisting(ctx context.Context, sessionID string, stage domain.Stage) (int, error) {
	if _, err := g.sessions.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := g.store.UpdateSessionAccess(ctx, sessionID, map[domain.Flag]bool{stage.ReleaseFlag(): true})
	if err != nil {
		return n, fmt.Errorf("release %s: %w", stage, err)
	}
	return n, nil
}

// SetAccess applies a release patch to one participant's record.
func (g *AccessGate) SetAccess(ctx context.Context, participantID, sessionID string, patch domain.AccessPatch) (domain.AccessRecord, error) {
	record, err := g.GetOrCreate(ctx, participantID, sessionID)
	if err != nil {
		return domain.AccessRecord{}, err
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return record, nil
	}
	if err := g.store.UpdateAccess(ctx, participantID, sessionID, fields); err != nil {
		return domain.AccessRecord{}, fmt.Errorf("update access: %w", err)
	}
	record.Apply(fields)
	return record, nil
}

// MarkCompleted sets the stage's completion flag. Marking an already completed stage is a no-op.
func (g *AccessGate) MarkCompleted(ctx context.Context, participantID, sessionID string, stage domain.Stage) error {
	if _, err := g.GetOrCreate(ctx, participantID, sessionID); err != nil {
		return err
	}
	if err := g.store.UpdateAccess(ctx, participantID, sessionID, map[domain.Flag]bool{stage.DoneFlag(): true}); err != nil {
		return fmt.Errorf("mark %s completed: %w", stage, err)
	}
	return nil
}

// ListAccess returns every access record of a session.
func (g *AccessGate) ListAccess(ctx context.Context, sessionID string) ([]domain.AccessRecord, error) {
	if _, err := g.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := g.store.FindAccess(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find access: %w", err)
	}
	return records, nil
}

// Summarize aggregates a session's access records for coordinator dashboards.
func (g *AccessGate) Summarize(ctx context.Context, sessionID string) (domain.AccessSummary, error) {
	records, err := g.ListAccess(ctx, sessionID)
	if err != nil {
		return domain.AccessSummary{}, err
	}
	return summarize(sessionID, records), nil
}

func summarize(sessionID string, records []domain.AccessRecord) domain.AccessSummary {
	summary := domain.AccessSummary{
		SessionID:         sessionID,
		TotalParticipants: len(records),
		Stages:            make(map[domain.Stage]domain.StageStatus, len(domain.Stages)),
	}
	for _, stage := range domain.Stages {
		var status domain.StageStatus
		for _, r := range records {
			if r.Released(stage) {
				status.Released = true
			}
			if r.Completed(stage) {
				status.CompletedCount++
			}
		}
		summary.Stages[stage] = status
	}
	return summary
}

// CanAccess reports whether a stage is available: released and not yet completed.
func CanAccess(record domain.AccessRecord, stage domain.Stage) bool {
	return record.Released(stage) && !record.Completed(stage)
}

// CheckAccess is CanAccess with an actionable InvalidState error.
func CheckAccess(record domain.AccessRecord, stage domain.Stage) error {
	if record.Completed(stage) {
		return domain.InvalidState("%s already submitted", stage.Label())
	}
	if !record.Released(stage) {
		return domain.InvalidState("%s not yet released", stage.Label())
	}
	return nil
}
