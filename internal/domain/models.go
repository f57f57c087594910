package domain

import "time"

// Role is the caller's role as supplied by the identity layer.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleTrainer     Role = "trainer"
	RoleParticipant Role = "participant"
)

// Identity is the authenticated caller. The core never authenticates; it only branches on Role.
type Identity struct {
	UserID string
	Role   Role
}

// TrainerRole is the allocation role of a trainer within a session.
type TrainerRole string

const (
	TrainerChief   TrainerRole = "chief"
	TrainerRegular TrainerRole = "regular"
)

// TrainerAssignment attaches a trainer to a session. Anything other than chief counts as regular.
type TrainerAssignment struct {
	TrainerID string      `json:"trainer_id"`
	Role      TrainerRole `json:"role"`
}

// IsChief reports whether the assignment carries the chief role.
func (a TrainerAssignment) IsChief() bool {
	return a.Role == TrainerChief
}

// Session is a scheduled training instance. ParticipantIDs order is the allocation basis.
type Session struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	ProgramID          string              `json:"program_id"`
	ParticipantIDs     []string            `json:"participant_ids"`
	TrainerAssignments []TrainerAssignment `json:"trainer_assignments"`
}

// Program owns the pass threshold applied to its tests. A nil threshold means unset.
type Program struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	PassThreshold *float64 `json:"pass_threshold,omitempty"`
}

// DefaultPassThreshold applies when a program has no threshold or cannot be found.
const DefaultPassThreshold = 70.0

// PassThresholdOr returns the program threshold, or fallback when unset.
func (p Program) PassThresholdOr(fallback float64) float64 {
	if p.PassThreshold == nil {
		return fallback
	}
	return *p.PassThreshold
}

// TestType distinguishes the pre-test from the post-test.
type TestType string

const (
	TestPre  TestType = "pre"
	TestPost TestType = "post"
)

// Stage returns the access stage gated by this test type.
func (t TestType) Stage() (Stage, bool) {
	switch t {
	case TestPre:
		return StagePreTest, true
	case TestPost:
		return StagePostTest, true
	}
	return "", false
}

// Question is a multiple-choice question with its answer key.
type Question struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
}

// Test is a program's pre or post test. Replaced wholesale, never edited in place.
type Test struct {
	ID        string     `json:"id"`
	ProgramID string     `json:"program_id"`
	Type      TestType   `json:"type"`
	Questions []Question `json:"questions"`
}

// Validate checks that a replacement definition can be presented and scored.
func (t Test) Validate() error {
	if t.ID == "" || t.ProgramID == "" {
		return Malformed("test needs an id and a program id")
	}
	if _, ok := t.Type.Stage(); !ok {
		return Malformed("test %s has unknown type %q", t.ID, t.Type)
	}
	if len(t.Questions) == 0 {
		return Malformed("test %s has no questions", t.ID)
	}
	for i, q := range t.Questions {
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
			return Malformed("question %d of test %s has no valid correct option", i, t.ID)
		}
	}
	return nil
}

// PresentedQuestion is a question as shown to the caller: no answer key, tagged with its original index.
type PresentedQuestion struct {
	OriginalIndex int      `json:"original_index"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
}

// PresentedTest is a test stripped of its answer key, in presentation order.
type PresentedTest struct {
	ID        string              `json:"id"`
	ProgramID string              `json:"program_id"`
	Type      TestType            `json:"type"`
	Shuffled  bool                `json:"shuffled"`
	Questions []PresentedQuestion `json:"questions"`
}

// OriginalIndices returns the original index of every presented question, in presentation order.
// Echoing this back on submission lets the score be computed against the right answer key.
func (p PresentedTest) OriginalIndices() []int {
	out := make([]int, len(p.Questions))
	for i, q := range p.Questions {
		out[i] = q.OriginalIndex
	}
	return out
}

// Submission is a participant's answer sheet, aligned to the presentation order they saw.
type Submission struct {
	TestID          string `json:"test_id"`
	SessionID       string `json:"session_id"`
	Answers         []int  `json:"answers"`
	QuestionIndices []int  `json:"question_indices,omitempty"`
}

// TestResult is created once per submission and never updated.
type TestResult struct {
	ID              string    `json:"id"`
	TestID          string    `json:"test_id"`
	ParticipantID   string    `json:"participant_id"`
	SessionID       string    `json:"session_id"`
	TestType        TestType  `json:"test_type"`
	Answers         []int     `json:"answers"`
	QuestionIndices []int     `json:"question_indices,omitempty"`
	Score           float64   `json:"score"`
	CorrectCount    int       `json:"correct_count"`
	TotalCount      int       `json:"total_count"`
	Passed          bool      `json:"passed"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// Shuffled reports whether the result was submitted against a reordered presentation.
func (r TestResult) Shuffled() bool {
	return len(r.QuestionIndices) > 0
}

// ReviewQuestion is a question with its answer key, aligned with one submitted answer.
type ReviewQuestion struct {
	OriginalIndex      int      `json:"original_index"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	SubmittedAnswer    *int     `json:"submitted_answer,omitempty"`
}

// Review pairs a stored result with its reconstructed questions.
type Review struct {
	Result    TestResult       `json:"result"`
	Questions []ReviewQuestion `json:"questions"`
}

// Certificate is the ledger entry written after a render.
type Certificate struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id"`
	ProgramID     string    `json:"program_id"`
	URL           string    `json:"url"`
	IssuedAt      time.Time `json:"issued_at"`
}
