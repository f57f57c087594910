package domain

// Stage is one gated step of the training workflow.
type Stage string

const (
	StagePreTest   Stage = "pre_test"
	StagePostTest  Stage = "post_test"
	StageChecklist Stage = "checklist"
	StageFeedback  Stage = "feedback"
)

// Stages lists every stage in workflow order.
var Stages = []Stage{StagePreTest, StagePostTest, StageChecklist, StageFeedback}

// ParseStage validates a stage name.
func ParseStage(raw string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", Malformed("unknown stage %q", raw)
}

// Label is the human form used in error messages.
func (s Stage) Label() string {
	switch s {
	case StagePreTest:
		return "pre-test"
	case StagePostTest:
		return "post-test"
	case StageChecklist:
		return "vehicle checklist"
	case StageFeedback:
		return "feedback"
	}
	return string(s)
}

// Flag names a single boolean column of an AccessRecord. The values are the persisted field names.
type Flag string

const (
	FlagPreTestOpen   Flag = "pre_test_open"
	FlagPostTestOpen  Flag = "post_test_open"
	FlagChecklistOpen Flag = "checklist_open"
	FlagFeedbackOpen  Flag = "feedback_open"
	FlagPreTestDone   Flag = "pre_test_done"
	FlagPostTestDone  Flag = "post_test_done"
	FlagChecklistDone Flag = "checklist_done"
	FlagFeedbackDone  Flag = "feedback_done"
)

// Flags lists every access flag.
var Flags = []Flag{
	FlagPreTestOpen, FlagPostTestOpen, FlagChecklistOpen, FlagFeedbackOpen,
	FlagPreTestDone, FlagPostTestDone, FlagChecklistDone, FlagFeedbackDone,
}

// ReleaseFlag is the admin-controlled flag that opens the stage.
func (s Stage) ReleaseFlag() Flag {
	return Flag(string(s) + "_open")
}

// DoneFlag is the system-set flag that records completion of the stage.
func (s Stage) DoneFlag() Flag {
	return Flag(string(s) + "_done")
}

// AccessRecord holds the per participant and session progression flags. All flags default to false.
type AccessRecord struct {
	ParticipantID string `json:"participant_id"`
	SessionID     string `json:"session_id"`

	PreTestOpen   bool `json:"pre_test_open"`
	PostTestOpen  bool `json:"post_test_open"`
	ChecklistOpen bool `json:"checklist_open"`
	FeedbackOpen  bool `json:"feedback_open"`

	PreTestDone   bool `json:"pre_test_done"`
	PostTestDone  bool `json:"post_test_done"`
	ChecklistDone bool `json:"checklist_done"`
	FeedbackDone  bool `json:"feedback_done"`
}

// NewAccessRecord returns the all-false record for a pair.
func NewAccessRecord(participantID, sessionID string) AccessRecord {
	return AccessRecord{ParticipantID: participantID, SessionID: sessionID}
}

// Get returns the value of a flag.
func (r AccessRecord) Get(f Flag) bool {
	if p := r.field(f); p != nil {
		return *p
	}
	return false
}

// Set assigns a flag. Unknown flags are ignored.
func (r *AccessRecord) Set(f Flag, v bool) {
	if p := r.field(f); p != nil {
		*p = v
	}
}

// Apply sets every flag in fields.
func (r *AccessRecord) Apply(fields map[Flag]bool) {
	for f, v := range fields {
		r.Set(f, v)
	}
}

// Released reports whether the stage has been opened.
func (r AccessRecord) Released(s Stage) bool {
	return r.Get(s.ReleaseFlag())
}

// Completed reports whether the stage has been finished.
func (r AccessRecord) Completed(s Stage) bool {
	return r.Get(s.DoneFlag())
}

// Fields returns every flag value keyed by its persisted name.
func (r AccessRecord) Fields() map[Flag]bool {
	out := make(map[Flag]bool, len(Flags))
	for _, f := range Flags {
		out[f] = r.Get(f)
	}
	return out
}

func (r *AccessRecord) field(f Flag) *bool {
	switch f {
	case FlagPreTestOpen:
		return &r.PreTestOpen
	case FlagPostTestOpen:
		return &r.PostTestOpen
	case FlagChecklistOpen:
		return &r.ChecklistOpen
	case FlagFeedbackOpen:
		return &r.FeedbackOpen
	case FlagPreTestDone:
		return &r.PreTestDone
	case FlagPostTestDone:
		return &r.PostTestDone
	case FlagChecklistDone:
		return &r.ChecklistDone
	case FlagFeedbackDone:
		return &r.FeedbackDone
	}
	return nil
}

// IsFlag reports whether f names a known access flag.
func IsFlag(f Flag) bool {
	var r AccessRecord
	return r.field(f) != nil
}

// AccessPatch sets any subset of the four release flags; nil leaves a flag untouched.
type AccessPatch struct {
	PreTestOpen   *bool `json:"pre_test_open,omitempty"`
	PostTestOpen  *bool `json:"post_test_open,omitempty"`
	ChecklistOpen *bool `json:"checklist_open,omitempty"`
	FeedbackOpen  *bool `json:"feedback_open,omitempty"`
}

// Fields returns only the flags the patch sets.
func (p AccessPatch) Fields() map[Flag]bool {
	out := make(map[Flag]bool, 4)
	add := func(f Flag, v *bool) {
		if v != nil {
			out[f] = *v
		}
	}
	add(FlagPreTestOpen, p.PreTestOpen)
	add(FlagPostTestOpen, p.PostTestOpen)
	add(FlagChecklistOpen, p.ChecklistOpen)
	add(FlagFeedbackOpen, p.FeedbackOpen)
	return out
}

// StageStatus aggregates one stage across a session.
type StageStatus struct {
	Released       bool `json:"released"`
	CompletedCount int  `json:"completed_count"`
}

// AccessSummary is the coordinator dashboard view of a session.
// Released is true when any record of the session has the stage open.
type AccessSummary struct {
	SessionID         string                `json:"session_id"`
	TotalParticipants int                   `json:"total_participants"`
	Stages            map[Stage]StageStatus `json:"stages"`
}
