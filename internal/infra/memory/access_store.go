package memory

import (
	"context"
	"sort"
	"sync"

	"training-gate-service/internal/domain"
)

type accessKey struct {
	participantID string
	sessionID     string
}

// AccessStore is an in-memory implementation of app.AccessStore.
type AccessStore struct {
	mu      sync.RWMutex
	records map[accessKey]domain.AccessRecord
}

func NewAccessStore() *AccessStore {
	return &AccessStore{records: make(map[accessKey]domain.AccessRecord)}
}

func (s *AccessStore) GetAccess(_ context.Context, participantID, sessionID string) (domain.AccessRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[accessKey{participantID, sessionID}]
	return r, ok, nil
}

func (s *AccessStore) InsertAccess(_ context.Context, record domain.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accessKey{record.ParticipantID, record.SessionID}
	if _, ok := s.records[key]; !ok {
		s.records[key] = record
	}
	return nil
}

func (s *AccessStore) UpdateAccess(_ context.Context, participantID, sessionID string, fields map[domain.Flag]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accessKey{participantID, sessionID}
	r, ok := s.records[key]
	if !ok {
		return domain.NotFound("access record for %s in session %s not found", participantID, sessionID)
	}
	r.Apply(fields)
	s.records[key] = r
	return nil
}

func (s *AccessStore) UpdateSessionAccess(_ context.Context, sessionID string, fields map[domain.Flag]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	modified := 0
	for key, r := range s.records {
		if key.sessionID != sessionID {
			continue
		}
		before := r
		r.Apply(fields)
		if r != before {
			modified++
			s.records[key] = r
		}
	}
	return modified, nil
}

// FindAccess returns the session's records ordered by participant id.
func (s *AccessStore) FindAccess(_ context.Context, sessionID string) ([]domain.AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AccessRecord, 0)
	for key, r := range s.records {
		if key.sessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}
