package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
)

// CertificateLedger upserts one certificate row per (participant, session).
// Re-issuing keeps the original id and refreshes the issue date.
type CertificateLedger struct {
	pool    *pgxpool.Pool
	baseURL string
	now     func() time.Time
}

func NewCertificateLedger(pool *pgxpool.Pool, baseURL string) *CertificateLedger {
	return &CertificateLedger{pool: pool, baseURL: baseURL, now: time.Now}
}

func (l *CertificateLedger) RenderCertificate(ctx context.Context, req app.CertificateRequest) (domain.Certificate, error) {
	cert := domain.Certificate{
		ParticipantID: req.ParticipantID,
		SessionID:     req.Session.ID,
		ProgramID:     req.Program.ID,
		URL:           fmt.Sprintf("%s/certificate_%s_%s.pdf", l.baseURL, req.ParticipantID, req.Session.ID),
		IssuedAt:      l.now().UTC(),
	}
	err := l.pool.QueryRow(ctx,
		`INSERT INTO certificates (id, participant_id, session_id, program_id, url, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (participant_id, session_id)
		 DO UPDATE SET program_id = EXCLUDED.program_id, url = EXCLUDED.url, issued_at = EXCLUDED.issued_at
		 RETURNING id`,
		uuid.NewString(), cert.ParticipantID, cert.SessionID, cert.ProgramID, cert.URL, cert.IssuedAt).
		Scan(&cert.ID)
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("upsert certificate: %w", err)
	}
	return cert, nil
}
