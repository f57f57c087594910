package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"training-gate-service/internal/domain"
)

// maxTxRetries bounds optimistic-lock retries when a watched record changes mid-update.
const maxTxRetries = 5

// AccessStore keeps access records in Redis, one hash per (session, participant).
// Records are stored as:  HSET access:{sessionID}:{participantID} {flag} 0|1
// Session membership as:  SADD session:{sessionID}:participants {participantID}
type AccessStore struct {
	client *redis.Client
}

func NewAccessStore(client *redis.Client) *AccessStore {
	return &AccessStore{client: client}
}

func (s *AccessStore) GetAccess(ctx context.Context, participantID, sessionID string) (domain.AccessRecord, bool, error) {
	values, err := s.client.HGetAll(ctx, recordKey(sessionID, participantID)).Result()
	if err != nil {
		return domain.AccessRecord{}, false, err
	}
	if len(values) == 0 {
		return domain.AccessRecord{}, false, nil
	}
	return decodeRecord(participantID, sessionID, values), true, nil
}

// InsertAccess writes every flag with HSETNX, so an existing record keeps its values.
func (s *AccessStore) InsertAccess(ctx context.Context, record domain.AccessRecord) error {
	key := recordKey(record.SessionID, record.ParticipantID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for f, v := range record.Fields() {
			pipe.HSetNX(ctx, key, string(f), encodeFlag(v))
		}
		pipe.SAdd(ctx, indexKey(record.SessionID), record.ParticipantID)
		return nil
	})
	return err
}

func (s *AccessStore) UpdateAccess(ctx context.Context, participantID, sessionID string, fields map[domain.Flag]bool) error {
	changed, err := s.update(ctx, recordKey(sessionID, participantID), fields)
	if err != nil {
		return err
	}
	if changed < 0 {
		return domain.NotFound("access record for %s in session %s not found", participantID, sessionID)
	}
	return nil
}

func (s *AccessStore) UpdateSessionAccess(ctx context.Context, sessionID string, fields map[domain.Flag]bool) (int, error) {
	members, err := s.client.SMembers(ctx, indexKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	modified := 0
	for _, participantID := range members {
		changed, err := s.update(ctx, recordKey(sessionID, participantID), fields)
		if err != nil {
			return modified, fmt.Errorf("update %s: %w", participantID, err)
		}
		if changed > 0 {
			modified++
		}
	}
	return modified, nil
}

// FindAccess returns the session's records ordered by participant id.
func (s *AccessStore) FindAccess(ctx context.Context, sessionID string) ([]domain.AccessRecord, error) {
	members, err := s.client.SMembers(ctx, indexKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, participantID := range members {
		cmds[i] = pipe.HGetAll(ctx, recordKey(sessionID, participantID))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]domain.AccessRecord, 0, len(members))
	for i, participantID := range members {
		values := cmds[i].Val()
		if len(values) == 0 {
			continue
		}
		out = append(out, decodeRecord(participantID, sessionID, values))
	}
	return out, nil
}

// update applies fields to an existing hash under WATCH. It returns -1 when the record is
// missing, 0 when nothing changed and 1 otherwise.
func (s *AccessStore) update(ctx context.Context, key string, fields map[domain.Flag]bool) (int, error) {
	for i := 0; i < maxTxRetries; i++ {
		changed := 0
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			values, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(values) == 0 {
				changed = -1
				return nil
			}
			pending := make(map[string]interface{})
			for f, v := range fields {
				if !domain.IsFlag(f) {
					continue
				}
				if values[string(f)] != encodeFlag(v) {
					pending[string(f)] = encodeFlag(v)
				}
			}
			if len(pending) == 0 {
				return nil
			}
			changed = 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, pending)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return changed, err
	}
	return 0, fmt.Errorf("update %s: %w", key, redis.TxFailedErr)
}

func recordKey(sessionID, participantID string) string {
	return "access:" + sessionID + ":" + participantID
}

func indexKey(sessionID string) string {
	return "session:" + sessionID + ":participants"
}

func encodeFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func decodeRecord(participantID, sessionID string, values map[string]string) domain.AccessRecord {
	record := domain.NewAccessRecord(participantID, sessionID)
	for _, f := range domain.Flags {
		record.Set(f, values[string(f)] == "1")
	}
	return record
}
