package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
)

// ResultStore keeps test results as JSONB with their lookup keys broken out into columns.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) InsertResult(ctx context.Context, result domain.TestResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO test_results (id, test_id, participant_id, session_id, submitted_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.ID, result.TestID, result.ParticipantID, result.SessionID, result.SubmittedAt, raw)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *ResultStore) GetResult(ctx context.Context, resultID string) (domain.TestResult, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM test_results WHERE id=$1`, resultID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestResult{}, domain.NotFound("test result %s not found", resultID)
	}
	if err != nil {
		return domain.TestResult{}, fmt.Errorf("get result: %w", err)
	}
	var result domain.TestResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.TestResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}

// FindResults returns matching results oldest first.
func (s *ResultStore) FindResults(ctx context.Context, filter app.ResultFilter) ([]domain.TestResult, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		where = append(where, fmt.Sprintf("session_id=$%d", len(args)))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		where = append(where, fmt.Sprintf("participant_id=$%d", len(args)))
	}
	query := `SELECT data FROM test_results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TestResult, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var result domain.TestResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}
