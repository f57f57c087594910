package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-gate-service/internal/domain"
)

// Catalog loads sessions, programs and test JSONB from Postgres.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id=$1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.NotFound("session %s not found", sessionID)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	session.ID = sessionID
	return session, nil
}

func (c *Catalog) GetProgram(ctx context.Context, programID string) (domain.Program, error) {
	program := domain.Program{ID: programID}
	err := c.pool.QueryRow(ctx, `SELECT name, pass_threshold FROM programs WHERE id=$1`, programID).
		Scan(&program.Name, &program.PassThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Program{}, domain.NotFound("program %s not found", programID)
	}
	if err != nil {
		return domain.Program{}, fmt.Errorf("load program: %w", err)
	}
	return program, nil
}

func (c *Catalog) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM tests WHERE id=$1`, testID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.NotFound("test %s not found", testID)
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}
	return decodeTest(testID, raw)
}

// LoadProgramTests returns the program's tests ordered by id.
func (c *Catalog) LoadProgramTests(ctx context.Context, programID string) ([]domain.Test, error) {
	rows, err := c.pool.Query(ctx, `SELECT id, data FROM tests WHERE program_id=$1 ORDER BY id`, programID)
	if err != nil {
		return nil, fmt.Errorf("load program tests: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Test, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		test, err := decodeTest(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, test)
	}
	return out, rows.Err()
}

// SaveSession inserts or replaces a session document.
func (c *Catalog) SaveSession(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO sessions (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, session.ID, raw)
	return err
}

// SaveTest inserts or fully replaces a test definition.
func (c *Catalog) SaveTest(ctx context.Context, test domain.Test) error {
	raw, err := json.Marshal(test)
	if err != nil {
		return fmt.Errorf("marshal test: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO tests (id, program_id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET program_id = EXCLUDED.program_id, data = EXCLUDED.data`,
		test.ID, test.ProgramID, raw)
	return err
}

func (c *Catalog) SaveProgram(ctx context.Context, program domain.Program) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO programs (id, name, pass_threshold) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, pass_threshold = EXCLUDED.pass_threshold`,
		program.ID, program.Name, program.PassThreshold)
	return err
}

func decodeTest(testID string, raw []byte) (domain.Test, error) {
	var test domain.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		return domain.Test{}, fmt.Errorf("unmarshal test: %w", err)
	}
	test.ID = testID
	return test, nil
}
