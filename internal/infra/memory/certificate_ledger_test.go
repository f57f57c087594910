package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
)

func TestCertificateLedgerReissueKeepsID(t *testing.T) {
	ledger := NewCertificateLedger("/certificates")
	tick := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return tick }

	req := app.CertificateRequest{
		ParticipantID: "p1",
		Session:       domain.Session{ID: "s1"},
		Program:       domain.Program{ID: "prog-1"},
	}
	first, err := ledger.RenderCertificate(context.Background(), req)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasSuffix(first.URL, "certificate_p1_s1.pdf") {
		t.Fatalf("unexpected url %s", first.URL)
	}

	tick = tick.Add(time.Hour)
	second, err := ledger.RenderCertificate(context.Background(), req)
	if err != nil {
		t.Fatalf("render again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected id %s to be kept, got %s", first.ID, second.ID)
	}
	if !second.IssuedAt.After(first.IssuedAt) {
		t.Fatalf("expected issue date refreshed")
	}
}
