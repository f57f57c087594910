package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-gate-service/internal/domain"
)

// AccessStore persists access records as one row per (participant, session).
// Flag names double as column names; only known flags ever reach SQL.
type AccessStore struct {
	pool *pgxpool.Pool
}

func NewAccessStore(pool *pgxpool.Pool) *AccessStore {
	return &AccessStore{pool: pool}
}

const accessColumns = `participant_id, session_id,
	pre_test_open, post_test_open, checklist_open, feedback_open,
	pre_test_done, post_test_done, checklist_done, feedback_done`

func (s *AccessStore) GetAccess(ctx context.Context, participantID, sessionID string) (domain.AccessRecord, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accessColumns+` FROM access_records WHERE participant_id=$1 AND session_id=$2`,
		participantID, sessionID)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AccessRecord{}, false, nil
	}
	if err != nil {
		return domain.AccessRecord{}, false, fmt.Errorf("get access: %w", err)
	}
	return record, true, nil
}

func (s *AccessStore) InsertAccess(ctx context.Context, r domain.AccessRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_records (`+accessColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (participant_id, session_id) DO NOTHING`,
		r.ParticipantID, r.SessionID,
		r.PreTestOpen, r.PostTestOpen, r.ChecklistOpen, r.FeedbackOpen,
		r.PreTestDone, r.PostTestDone, r.ChecklistDone, r.FeedbackDone)
	if err != nil {
		return fmt.Errorf("insert access: %w", err)
	}
	return nil
}

func (s *AccessStore) UpdateAccess(ctx context.Context, participantID, sessionID string, fields map[domain.Flag]bool) error {
	set, args := assignments(fields)
	if len(set) == 0 {
		return nil
	}
	n := len(args)
	args = append(args, participantID, sessionID)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE access_records SET %s WHERE participant_id=$%d AND session_id=$%d`,
			strings.Join(set, ", "), n+1, n+2),
		args...)
	if err != nil {
		return fmt.Errorf("update access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("access record for %s in session %s not found", participantID, sessionID)
	}
	return nil
}

// UpdateSessionAccess only touches rows where some flag differs, so RowsAffected is the modified count.
func (s *AccessStore) UpdateSessionAccess(ctx context.Context, sessionID string, fields map[domain.Flag]bool) (int, error) {
	set, args := assignments(fields)
	if len(set) == 0 {
		return 0, nil
	}
	differs := make([]string, len(set))
	for i, clause := range set {
		differs[i] = strings.Replace(clause, " = ", " IS DISTINCT FROM ", 1)
	}
	n := len(args)
	args = append(args, sessionID)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE access_records SET %s WHERE session_id=$%d AND (%s)`,
			strings.Join(set, ", "), n+1, strings.Join(differs, " OR ")),
		args...)
	if err != nil {
		return 0, fmt.Errorf("update session access: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *AccessStore) FindAccess(ctx context.Context, sessionID string) ([]domain.AccessRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accessColumns+` FROM access_records WHERE session_id=$1 ORDER BY participant_id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("find access: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AccessRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// assignments renders "column = $n" clauses in a stable order, skipping unknown flags.
func assignments(fields map[domain.Flag]bool) ([]string, []interface{}) {
	flags := make([]string, 0, len(fields))
	for f := range fields {
		if domain.IsFlag(f) {
			flags = append(flags, string(f))
		}
	}
	sort.Strings(flags)

	set := make([]string, len(flags))
	args := make([]interface{}, len(flags))
	for i, f := range flags {
		set[i] = fmt.Sprintf("%s = $%d", f, i+1)
		args[i] = fields[domain.Flag(f)]
	}
	return set, args
}

func scanRecord(row pgx.Row) (domain.AccessRecord, error) {
	var r domain.AccessRecord
	err := row.Scan(&r.ParticipantID, &r.SessionID,
		&r.PreTestOpen, &r.PostTestOpen, &r.ChecklistOpen, &r.FeedbackOpen,
		&r.PreTestDone, &r.PostTestDone, &r.ChecklistDone, &r.FeedbackDone)
	return r, err
}
