package memory

import (
	"context"
	"sort"
	"sync"

	"training-gate-service/internal/domain"
)

// Catalog is a map-backed source of sessions, tests and programs (useful for tests/demos).
type Catalog struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	tests    map[string]domain.Test
	programs map[string]domain.Program
}

func NewCatalog() *Catalog {
	return &Catalog{
		sessions: make(map[string]domain.Session),
		tests:    make(map[string]domain.Test),
		programs: make(map[string]domain.Program),
	}
}

func (c *Catalog) PutSession(s domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = s
}

// PutTest stores or fully replaces a test definition.
func (c *Catalog) PutTest(t domain.Test) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tests[t.ID] = t
}

// SaveTest is PutTest behind the loader interface.
func (c *Catalog) SaveTest(_ context.Context, t domain.Test) error {
	c.PutTest(t)
	return nil
}

func (c *Catalog) PutProgram(p domain.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[p.ID] = p
}

func (c *Catalog) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.NotFound("session %s not found", sessionID)
	}
	return s, nil
}

func (c *Catalog) GetProgram(_ context.Context, programID string) (domain.Program, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.programs[programID]
	if !ok {
		return domain.Program{}, domain.NotFound("program %s not found", programID)
	}
	return p, nil
}

func (c *Catalog) LoadTest(_ context.Context, testID string) (domain.Test, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tests[testID]
	if !ok {
		return domain.Test{}, domain.NotFound("test %s not found", testID)
	}
	return t, nil
}

// LoadProgramTests returns a program's tests ordered by id.
func (c *Catalog) LoadProgramTests(_ context.Context, programID string) ([]domain.Test, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Test, 0)
	for _, t := range c.tests {
		if t.ProgramID == programID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
