package logger

// Standard field names for consistent logging.
const (
	FieldService       = "service"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldRole          = "role"
	FieldSessionID     = "session_id"
	FieldParticipantID = "participant_id"
	FieldTrainerID     = "trainer_id"
	FieldTestID        = "test_id"
	FieldStage         = "stage"
)
