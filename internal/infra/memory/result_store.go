package memory

import (
	"context"
	"sync"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
)

// ResultStore keeps test results in insertion order.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.TestResult
	byID    map[string]int
}

func NewResultStore() *ResultStore {
	return &ResultStore{byID: make(map[string]int)}
}

func (s *ResultStore) InsertResult(_ context.Context, result domain.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[result.ID] = len(s.results)
	s.results = append(s.results, cloneResult(result))
	return nil
}

func (s *ResultStore) GetResult(_ context.Context, resultID string) (domain.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[resultID]
	if !ok {
		return domain.TestResult{}, domain.NotFound("test result %s not found", resultID)
	}
	return cloneResult(s.results[i]), nil
}

func (s *ResultStore) FindResults(_ context.Context, filter app.ResultFilter) ([]domain.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TestResult, 0)
	for _, r := range s.results {
		if filter.SessionID != "" && r.SessionID != filter.SessionID {
			continue
		}
		if filter.ParticipantID != "" && r.ParticipantID != filter.ParticipantID {
			continue
		}
		out = append(out, cloneResult(r))
	}
	return out, nil
}

// cloneResult detaches the answer slices so stored results stay immutable.
func cloneResult(r domain.TestResult) domain.TestResult {
	r.Answers = append([]int(nil), r.Answers...)
	r.QuestionIndices = append([]int(nil), r.QuestionIndices...)
	return r
}
