package app

import "training-gate-service/internal/domain"

// chiefFraction of the roster is reserved for chief trainers when regular trainers also exist.
const chiefFraction = 0.3

// Allocation is one trainer's contiguous slice of a session roster.
type Allocation struct {
	TrainerID      string             `json:"trainer_id"`
	Role           domain.TrainerRole `json:"role"`
	Start          int                `json:"start"`
	Count          int                `json:"count"`
	ParticipantIDs []string           `json:"participant_ids"`
}

// slot is a computed [start, start+count) window before clamping to the roster.
type slot struct {
	start int
	count int
}

// share splits total across members; the first total%members members get one extra.
// start is offset+pos*per and does not account for extras already handed out, so when a
// remainder exists later windows overlap earlier ones and the tail of the group is left out.
// Downstream reports depend on this distribution; keep the formula as is.
func share(total, members, pos, offset int) slot {
	per := total / members
	count := per
	if pos < total%members {
		count++
	}
	return slot{start: offset + pos*per, count: count}
}

// AllocateParticipants computes every trainer's slice, in assignment order. Chiefs share
// floor(0.3*N) when regular trainers exist, the whole roster otherwise; with no chiefs the
// roster is split evenly.
func AllocateParticipants(participantIDs []string, assignments []domain.TrainerAssignment) ([]Allocation, error) {
	n := len(participantIDs)
	if len(assignments) == 0 {
		if n > 0 {
			return nil, domain.AllocationInvalid("session has %d participants but no trainers", n)
		}
		return nil, nil
	}

	totalChiefs, totalRegulars := 0, 0
	for _, a := range assignments {
		if a.IsChief() {
			totalChiefs++
		} else {
			totalRegulars++
		}
	}

	chiefShare := 0
	if totalChiefs > 0 && totalRegulars > 0 {
		chiefShare = int(float64(n) * chiefFraction)
	}

	out := make([]Allocation, 0, len(assignments))
	chiefPos, regularPos := 0, 0
	for _, a := range assignments {
		var s slot
		role := domain.TrainerRegular
		switch {
		case totalChiefs == 0:
			s = share(n, len(assignments), regularPos, 0)
			regularPos++
		case a.IsChief():
			role = domain.TrainerChief
			if totalRegulars > 0 {
				s = share(chiefShare, totalChiefs, chiefPos, 0)
			} else {
				s = share(n, totalChiefs, chiefPos, 0)
			}
			chiefPos++
		default:
			s = share(n-chiefShare, totalRegulars, regularPos, chiefShare)
			regularPos++
		}
		start, end := clampWindow(s, n)
		out = append(out, Allocation{
			TrainerID:      a.TrainerID,
			Role:           role,
			Start:          s.start,
			Count:          s.count,
			ParticipantIDs: append([]string{}, participantIDs[start:end]...),
		})
	}
	return out, nil
}

// AssignedParticipants returns the slice owned by trainerID. A trainer listed more than once
// owns the slot of its first listing, chief listings taking precedence.
func AssignedParticipants(participantIDs []string, assignments []domain.TrainerAssignment, trainerID string) ([]string, error) {
	allocations, err := AllocateParticipants(participantIDs, assignments)
	if err != nil {
		return nil, err
	}
	var regular *Allocation
	for i := range allocations {
		a := &allocations[i]
		if a.TrainerID != trainerID {
			continue
		}
		if a.Role == domain.TrainerChief {
			return a.ParticipantIDs, nil
		}
		if regular == nil {
			regular = a
		}
	}
	if regular == nil {
		return nil, domain.Forbidden("trainer %s is not assigned to this session", trainerID)
	}
	return regular.ParticipantIDs, nil
}

func clampWindow(s slot, n int) (int, int) {
	start := s.start
	if start > n {
		start = n
	}
	end := s.start + s.count
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return start, end
}
