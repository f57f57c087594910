package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
)

// CertificateLedger records issued certificates and hands out their download paths.
// Document generation happens out of process; re-issuing keeps the id and refreshes the date.
type CertificateLedger struct {
	baseURL string
	now     func() time.Time

	mu    sync.Mutex
	certs map[accessKey]domain.Certificate
}

func NewCertificateLedger(baseURL string) *CertificateLedger {
	return &CertificateLedger{
		baseURL: baseURL,
		now:     time.Now,
		certs:   make(map[accessKey]domain.Certificate),
	}
}

func (l *CertificateLedger) RenderCertificate(_ context.Context, req app.CertificateRequest) (domain.Certificate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := accessKey{req.ParticipantID, req.Session.ID}
	cert, ok := l.certs[key]
	if !ok {
		cert = domain.Certificate{
			ID:            uuid.NewString(),
			ParticipantID: req.ParticipantID,
			SessionID:     req.Session.ID,
			ProgramID:     req.Program.ID,
		}
	}
	cert.URL = fmt.Sprintf("%s/certificate_%s_%s.pdf", l.baseURL, req.ParticipantID, req.Session.ID)
	cert.IssuedAt = l.now().UTC()
	l.certs[key] = cert
	return cert, nil
}
