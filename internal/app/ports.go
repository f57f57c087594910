package app

import (
	"context"

	"training-gate-service/internal/domain"
)

// SessionRepository loads session rosters. Missing sessions return a domain NotFound error.
type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
}

// TestRepository loads test definitions (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
	ListTests(ctx context.Context, programID string) ([]domain.Test, error)
	// SaveTest replaces the definition in the backing store; later reads never see the old one.
	SaveTest(ctx context.Context, test domain.Test) error
}

// ProgramRegistry resolves the program that owns a test or session.
type ProgramRegistry interface {
	GetProgram(ctx context.Context, programID string) (domain.Program, error)
}

// AccessStore persists access records keyed by (participant, session).
// Implementations make each call atomic on its own; no caller holds a lock across calls.
type AccessStore interface {
	// GetAccess returns the record and whether it exists.
	GetAccess(ctx context.Context, participantID, sessionID string) (domain.AccessRecord, bool, error)
	// InsertAccess creates the record unless one already exists for the pair.
	InsertAccess(ctx context.Context, record domain.AccessRecord) error
	// UpdateAccess sets the given flags on an existing record.
	UpdateAccess(ctx context.Context, participantID, sessionID string, fields map[domain.Flag]bool) error
	// UpdateSessionAccess sets the flags on every existing record of a session and
	// returns how many records changed.
	UpdateSessionAccess(ctx context.Context, sessionID string, fields map[domain.Flag]bool) (int, error)
	// FindAccess lists every record of a session.
	FindAccess(ctx context.Context, sessionID string) ([]domain.AccessRecord, error)
}

// ResultFilter narrows FindResults. Empty fields match everything.
type ResultFilter struct {
	SessionID     string
	ParticipantID string
}

// ResultStore persists test results. Results are insert-only.
type ResultStore interface {
	InsertResult(ctx context.Context, result domain.TestResult) error
	GetResult(ctx context.Context, resultID string) (domain.TestResult, error)
	FindResults(ctx context.Context, filter ResultFilter) ([]domain.TestResult, error)
}

// CertificateRequest is what the renderer needs once the gate has passed.
type CertificateRequest struct {
	ParticipantID string
	Session       domain.Session
	Program       domain.Program
}

// CertificateRenderer produces the certificate document. Templating lives outside the core.
type CertificateRenderer interface {
	RenderCertificate(ctx context.Context, req CertificateRequest) (domain.Certificate, error)
}
