package app

import (
	"math/rand"

	"training-gate-service/internal/domain"
)

// Shuffler permutes n elements through swap, with the contract of rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// TestEngine separates a test's answer key from what a participant sees, while keeping enough
// of the presentation to score it and to replay it for review.
type TestEngine struct {
	shuffle Shuffler
}

// NewTestEngine shuffles with the auto-seeded global source, so every presentation may differ.
func NewTestEngine() *TestEngine {
	return &TestEngine{shuffle: rand.Shuffle}
}

// NewTestEngineWithShuffler is test-only for deterministic presentation orders.
func NewTestEngineWithShuffler(shuffle Shuffler) *TestEngine {
	return &TestEngine{shuffle: shuffle}
}

// Present strips the answer key. Post-tests shown to participants come back in a fresh
// Fisher-Yates order; everything else keeps the canonical order. Each question carries the
// index it had in the test definition.
func (e *TestEngine) Present(test domain.Test, role domain.Role) domain.PresentedTest {
	order := make([]int, len(test.Questions))
	for i := range order {
		order[i] = i
	}
	shuffled := test.Type == domain.TestPost && role == domain.RoleParticipant
	if shuffled {
		e.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	questions := make([]domain.PresentedQuestion, len(order))
	for pos, idx := range order {
		q := test.Questions[idx]
		questions[pos] = domain.PresentedQuestion{
			OriginalIndex: idx,
			Text:          q.Text,
			Options:       append([]string(nil), q.Options...),
		}
	}
	return domain.PresentedTest{
		ID:        test.ID,
		ProgramID: test.ProgramID,
		Type:      test.Type,
		Shuffled:  shuffled,
		Questions: questions,
	}
}

// Score grades answers given in presentation order. When questionIndices is non-empty,
// answers[i] is graded against test.Questions[questionIndices[i]]; otherwise against
// test.Questions[i]. Sheets that cannot be mapped onto the test are rejected, not clamped.
func (e *TestEngine) Score(test domain.Test, answers, questionIndices []int, passThreshold float64) (domain.TestResult, error) {
	total := len(test.Questions)
	if len(answers) > total {
		return domain.TestResult{}, domain.Malformed("submitted %d answers for a test of %d questions", len(answers), total)
	}
	if err := validateIndices(questionIndices, len(answers), total); err != nil {
		return domain.TestResult{}, err
	}

	correct := 0
	for i, answer := range answers {
		idx := i
		if len(questionIndices) > 0 {
			idx = questionIndices[i]
		}
		if answer == test.Questions[idx].CorrectOptionIndex {
			correct++
		}
	}

	score := 0.0
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	result := domain.TestResult{
		TestID:       test.ID,
		TestType:     test.Type,
		Answers:      append([]int{}, answers...),
		Score:        score,
		CorrectCount: correct,
		TotalCount:   total,
		Passed:       score >= passThreshold,
	}
	if len(questionIndices) > 0 {
		result.QuestionIndices = append([]int(nil), questionIndices...)
	}
	return result, nil
}

func validateIndices(indices []int, answers, total int) error {
	if len(indices) == 0 {
		return nil
	}
	if len(indices) != answers {
		return domain.Malformed("question_indices has %d entries for %d answers", len(indices), answers)
	}
	seen := make(map[int]struct{}, len(indices))
	for pos, idx := range indices {
		if idx < 0 || idx >= total {
			return domain.Malformed("question index %d at position %d is out of range [0,%d)", idx, pos, total)
		}
		if _, dup := seen[idx]; dup {
			return domain.Malformed("question index %d appears more than once", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// ReconstructReview returns the questions in the order the participant saw them, answer key
// included, so that review[i] corresponds to result.Answers[i].
func (e *TestEngine) ReconstructReview(result domain.TestResult, test domain.Test) ([]domain.ReviewQuestion, error) {
	order := result.QuestionIndices
	if !result.Shuffled() {
		order = make([]int, len(test.Questions))
		for i := range order {
			order[i] = i
		}
	}

	review := make([]domain.ReviewQuestion, 0, len(order))
	for pos, idx := range order {
		if idx < 0 || idx >= len(test.Questions) {
			return nil, domain.Malformed("stored question index %d at position %d no longer exists in test %s", idx, pos, test.ID)
		}
		q := test.Questions[idx]
		rq := domain.ReviewQuestion{
			OriginalIndex:      idx,
			Text:               q.Text,
			Options:            append([]string(nil), q.Options...),
			CorrectOptionIndex: q.CorrectOptionIndex,
		}
		if pos < len(result.Answers) {
			answer := result.Answers[pos]
			rq.SubmittedAnswer = &answer
		}
		review = append(review, rq)
	}
	return review, nil
}
