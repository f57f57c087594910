package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"training-gate-service/internal/domain"
	"training-gate-service/pkg/logger"
)

// Deps wires the stores and collaborators a TrainingService needs.
type Deps struct {
	Sessions SessionRepository
	Tests    TestRepository
	Programs ProgramRegistry
	Access   AccessStore
	Results  ResultStore
	Renderer CertificateRenderer

	// Optional.
	Engine               *TestEngine
	Hub                  *StatusHub
	Logger               *zap.Logger
	DefaultPassThreshold float64
	Now                  func() time.Time
	NewID                func() string
}

// TrainingService contains the training workflow use cases. It applies role checks and
// composes the access gate, test engine, trainer allocation and certificate gate.
type TrainingService struct {
	sessions SessionRepository
	tests    TestRepository
	programs ProgramRegistry
	results  ResultStore
	renderer CertificateRenderer

	gate   *AccessGate
	engine *TestEngine
	hub    *StatusHub
	log    *zap.Logger

	defaultPass float64
	now         func() time.Time
	newID       func() string
}

func NewTrainingService(d Deps) *TrainingService {
	s := &TrainingService{
		sessions:    d.Sessions,
		tests:       d.Tests,
		programs:    d.Programs,
		results:     d.Results,
		renderer:    d.Renderer,
		gate:        NewAccessGate(d.Access, d.Sessions),
		engine:      d.Engine,
		hub:         d.Hub,
		log:         d.Logger,
		defaultPass: d.DefaultPassThreshold,
		now:         d.Now,
		newID:       d.NewID,
	}
	if s.engine == nil {
		s.engine = NewTestEngine()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.defaultPass == 0 {
		s.defaultPass = domain.DefaultPassThreshold
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func requireRole(caller domain.Identity, action string, roles ...domain.Role) error {
	for _, r := range roles {
		if caller.Role == r {
			return nil
		}
	}
	return domain.Forbidden("role %q may not %s", caller.Role, action)
}

// MyAccess returns the caller's own access record for a session.
func (s *TrainingService) MyAccess(ctx context.Context, caller domain.Identity, sessionID string) (domain.AccessRecord, error) {
	if err := requireRole(caller, "check participant access", domain.RoleParticipant); err != nil {
		return domain.AccessRecord{}, err
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return domain.AccessRecord{}, err
	}
	return s.gate.GetOrCreate(ctx, caller.UserID, sessionID)
}

// ListAccess returns every access record of a session.
func (s *TrainingService) ListAccess(ctx context.Context, caller domain.Identity, sessionID string) ([]domain.AccessRecord, error) {
	if err := requireRole(caller, "list session access", domain.RoleAdmin, domain.RoleCoordinator); err != nil {
		return nil, err
	}
	return s.gate.ListAccess(ctx, sessionID)
}

// SetReleased opens or closes a stage for the given participants, or the whole roster when nil.
func (s *TrainingService) SetReleased(ctx context.Context, caller domain.Identity, sessionID string, stage domain.Stage, enabled bool, participantIDs []string) (int, error) {
	if err := requireRole(caller, "control stage access", domain.RoleAdmin, domain.RoleCoordinator); err != nil {
		return 0, err
	}
	updated, err := s.gate.SetReleased(ctx, sessionID, stage, enabled, participantIDs)
	fields := []zap.Field{
		zap.String(logger.FieldOperation, "set_released"),
		zap.String(logger.FieldUserID, caller.UserID),
		zap.String(logger.FieldSessionID, sessionID),
		zap.String(logger.FieldStage, string(stage)),
		zap.Bool("enabled", enabled),
		zap.Int("updated", updated),
	}
	if err != nil {
		if updated > 0 {
			s.log.Warn("stage release partially applied", append(fields, zap.Error(err))...)
			s.publish(ctx, sessionID)
		}
		return updated, err
	}
	s.log.Info("stage release toggled", fields...)
	s.publish(ctx, sessionID)
	return updated, nil
}

// ReleaseExisting opens a stage on the session's existing access records only.
func (s *TrainingService) ReleaseExisting(ctx context.Context, caller domain.Identity, sessionID string, stage domain.Stage) (int, error) {
	if err := requireRole(caller, "release stages", domain.RoleAdmin, domain.RoleCoordinator); err != nil {
		return 0, err
	}
	n, err := s.gate.ReleaseExisting(ctx, sessionID, stage)
	if err != nil {
		return n, err
	}
	s.log.Info("stage released to existing records",
		zap.String(logger.FieldSessionID, sessionID),
		zap.String(logger.FieldStage, string(stage)),
		zap.Int("modified", n))
	s.publish(ctx, sessionID)
	return n, nil
}

// SetAccess applies a per-participant release patch.
func (s *TrainingService) SetAccess(ctx context.Context, caller domain.Identity, participantID, sessionID string, patch domain.AccessPatch) (domain.AccessRecord, error) {
	if err := requireRole(caller, "update participant access", domain.RoleAdmin); err != nil {
		return domain.AccessRecord{}, err
	}
	record, err := s.gate.SetAccess(ctx, participantID, sessionID, patch)
	if err != nil {
		return domain.AccessRecord{}, err
	}
	s.publish(ctx, sessionID)
	return record, nil
}

// SessionStatus summarizes stage release and completion across a session.
func (s *TrainingService) SessionStatus(ctx context.Context, caller domain.Identity, sessionID string) (domain.AccessSummary, error) {
	if err := requireRole(caller, "view session status", domain.RoleAdmin, domain.RoleCoordinator, domain.RoleTrainer); err != nil {
		return domain.AccessSummary{}, err
	}
	return s.gate.Summarize(ctx, sessionID)
}

// SubscribeStatus returns the current summary plus a channel of later ones.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *TrainingService) SubscribeStatus(ctx context.Context, caller domain.Identity, sessionID string) (domain.AccessSummary, <-chan domain.AccessSummary, func(), error) {
	if s.hub == nil {
		return domain.AccessSummary{}, nil, nil, errors.New("status feed is not configured")
	}
	initial, err := s.SessionStatus(ctx, caller, sessionID)
	if err != nil {
		return domain.AccessSummary{}, nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(sessionID)
	return initial, ch, cancel, nil
}

func (s *TrainingService) publish(ctx context.Context, sessionID string) {
	if s.hub == nil || !s.hub.HasSubscribers(sessionID) {
		return
	}
	summary, err := s.gate.Summarize(ctx, sessionID)
	if err != nil {
		s.log.Warn("status publish failed", zap.String(logger.FieldSessionID, sessionID), zap.Error(err))
		return
	}
	s.hub.Publish(summary)
}

// AvailableTests presents every test of the session's program whose stage is open to the caller.
func (s *TrainingService) AvailableTests(ctx context.Context, caller domain.Identity, sessionID string) ([]domain.PresentedTest, error) {
	if err := requireRole(caller, "list available tests", domain.RoleParticipant); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	record, err := s.gate.GetOrCreate(ctx, caller.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	tests, err := s.tests.ListTests(ctx, session.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}

	out := make([]domain.PresentedTest, 0, len(tests))
	for _, test := range tests {
		stage, ok := test.Type.Stage()
		if !ok || !CanAccess(record, stage) {
			continue
		}
		out = append(out, s.engine.Present(test, caller.Role))
	}
	return out, nil
}

// PresentTest returns a test without its answer key. Participants must have the test's stage
// open in sessionID; staff see the canonical order.
func (s *TrainingService) PresentTest(ctx context.Context, caller domain.Identity, sessionID, testID string) (domain.PresentedTest, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.PresentedTest{}, err
	}
	if caller.Role == domain.RoleParticipant {
		stage, ok := test.Type.Stage()
		if !ok {
			return domain.PresentedTest{}, domain.InvalidState("test %s has unknown type %q", test.ID, test.Type)
		}
		if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
			return domain.PresentedTest{}, err
		}
		record, err := s.gate.GetOrCreate(ctx, caller.UserID, sessionID)
		if err != nil {
			return domain.PresentedTest{}, err
		}
		if err := CheckAccess(record, stage); err != nil {
			return domain.PresentedTest{}, err
		}
	}
	return s.engine.Present(test, caller.Role), nil
}

// ReplaceTest stores a full replacement of a test definition (admin only).
func (s *TrainingService) ReplaceTest(ctx context.Context, caller domain.Identity, test domain.Test) (domain.Test, error) {
	if err := requireRole(caller, "replace tests", domain.RoleAdmin); err != nil {
		return domain.Test{}, err
	}
	if err := test.Validate(); err != nil {
		return domain.Test{}, err
	}
	if _, err := s.programs.GetProgram(ctx, test.ProgramID); err != nil {
		return domain.Test{}, err
	}
	if err := s.tests.SaveTest(ctx, test); err != nil {
		return domain.Test{}, fmt.Errorf("save test: %w", err)
	}
	s.log.Info("test replaced",
		zap.String(logger.FieldUserID, caller.UserID),
		zap.String(logger.FieldTestID, test.ID),
		zap.Int("questions", len(test.Questions)))
	return test, nil
}

// SubmitTest scores a participant's answers, stores the result and marks the stage completed.
// A repeated submission is accepted and stored; the completion flag is already set.
func (s *TrainingService) SubmitTest(ctx context.Context, caller domain.Identity, sub domain.Submission) (domain.TestResult, error) {
	if caller.Role != domain.RoleParticipant {
		return domain.TestResult{}, domain.Forbidden("only participants can submit tests")
	}
	test, err := s.tests.GetTest(ctx, sub.TestID)
	if err != nil {
		return domain.TestResult{}, err
	}
	stage, ok := test.Type.Stage()
	if !ok {
		return domain.TestResult{}, domain.InvalidState("test %s has unknown type %q", test.ID, test.Type)
	}
	if _, err := s.sessions.GetSession(ctx, sub.SessionID); err != nil {
		return domain.TestResult{}, err
	}
	threshold, err := s.passThreshold(ctx, test.ProgramID)
	if err != nil {
		return domain.TestResult{}, err
	}

	result, err := s.engine.Score(test, sub.Answers, sub.QuestionIndices, threshold)
	if err != nil {
		return domain.TestResult{}, err
	}
	result.ID = s.newID()
	result.ParticipantID = caller.UserID
	result.SessionID = sub.SessionID
	result.SubmittedAt = s.now().UTC()

	if err := s.results.InsertResult(ctx, result); err != nil {
		return domain.TestResult{}, fmt.Errorf("insert result: %w", err)
	}
	if err := s.gate.MarkCompleted(ctx, caller.UserID, sub.SessionID, stage); err != nil {
		return domain.TestResult{}, err
	}

	s.log.Info("test submitted",
		zap.String(logger.FieldParticipantID, caller.UserID),
		zap.String(logger.FieldSessionID, sub.SessionID),
		zap.String(logger.FieldTestID, test.ID),
		zap.Float64("score", result.Score),
		zap.Bool("passed", result.Passed))
	s.publish(ctx, sub.SessionID)
	return result, nil
}

func (s *TrainingService) passThreshold(ctx context.Context, programID string) (float64, error) {
	program, err := s.programs.GetProgram(ctx, programID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.defaultPass, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get program: %w", err)
	}
	return program.PassThresholdOr(s.defaultPass), nil
}

// Review rebuilds a result's questions in the order the participant answered them.
func (s *TrainingService) Review(ctx context.Context, caller domain.Identity, resultID string) (domain.Review, error) {
	result, err := s.results.GetResult(ctx, resultID)
	if err != nil {
		return domain.Review{}, err
	}
	if caller.Role == domain.RoleParticipant && result.ParticipantID != caller.UserID {
		return domain.Review{}, domain.Forbidden("participants may only review their own results")
	}
	test, err := s.tests.GetTest(ctx, result.TestID)
	if err != nil {
		return domain.Review{}, err
	}
	questions, err := s.engine.ReconstructReview(result, test)
	if err != nil {
		return domain.Review{}, err
	}
	return domain.Review{Result: result, Questions: questions}, nil
}

// SessionResults lists every result submitted in a session.
func (s *TrainingService) SessionResults(ctx context.Context, caller domain.Identity, sessionID string) ([]domain.TestResult, error) {
	if err := requireRole(caller, "view session results", domain.RoleAdmin, domain.RoleCoordinator); err != nil {
		return nil, err
	}
	return s.results.FindResults(ctx, ResultFilter{SessionID: sessionID})
}

// ParticipantResults lists a participant's results; participants only see their own.
func (s *TrainingService) ParticipantResults(ctx context.Context, caller domain.Identity, participantID string) ([]domain.TestResult, error) {
	if caller.Role == domain.RoleParticipant && caller.UserID != participantID {
		return nil, domain.Forbidden("participants may only view their own results")
	}
	return s.results.FindResults(ctx, ResultFilter{ParticipantID: participantID})
}

// CompleteStage records that the caller finished the checklist or feedback stage.
// The submitted content itself is stored by other collaborators.
func (s *TrainingService) CompleteStage(ctx context.Context, caller domain.Identity, sessionID string, stage domain.Stage) error {
	if err := requireRole(caller, "submit "+stage.Label(), domain.RoleParticipant); err != nil {
		return err
	}
	if stage != domain.StageChecklist && stage != domain.StageFeedback {
		return domain.Malformed("%s is completed by submitting its test", stage.Label())
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}
	record, err := s.gate.GetOrCreate(ctx, caller.UserID, sessionID)
	if err != nil {
		return err
	}
	if err := CheckAccess(record, stage); err != nil {
		return err
	}
	if err := s.gate.MarkCompleted(ctx, caller.UserID, sessionID, stage); err != nil {
		return err
	}
	s.log.Info("stage completed",
		zap.String(logger.FieldParticipantID, caller.UserID),
		zap.String(logger.FieldSessionID, sessionID),
		zap.String(logger.FieldStage, string(stage)))
	s.publish(ctx, sessionID)
	return nil
}

// AssignedParticipants returns the roster slice the calling trainer owns.
func (s *TrainingService) AssignedParticipants(ctx context.Context, caller domain.Identity, sessionID string) ([]string, error) {
	if err := requireRole(caller, "view assigned participants", domain.RoleTrainer); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(session.TrainerAssignments) == 0 {
		return []string{}, nil
	}
	ids, err := AssignedParticipants(session.ParticipantIDs, session.TrainerAssignments, caller.UserID)
	if err != nil {
		return nil, err
	}
	role := domain.TrainerRegular
	for _, a := range session.TrainerAssignments {
		if a.TrainerID == caller.UserID && a.IsChief() {
			role = domain.TrainerChief
			break
		}
	}
	s.log.Debug("assigned participants resolved",
		zap.String(logger.FieldTrainerID, caller.UserID),
		zap.String(logger.FieldRole, string(role)),
		zap.String(logger.FieldSessionID, sessionID),
		zap.Int("count", len(ids)))
	return ids, nil
}

// Allocations returns every trainer's slice of the session roster.
func (s *TrainingService) Allocations(ctx context.Context, caller domain.Identity, sessionID string) ([]Allocation, error) {
	if err := requireRole(caller, "view trainer allocations", domain.RoleAdmin, domain.RoleCoordinator); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return AllocateParticipants(session.ParticipantIDs, session.TrainerAssignments)
}

// IssueCertificate renders a certificate once the participant has submitted feedback.
// Admins may issue for anyone; participants only for themselves.
func (s *TrainingService) IssueCertificate(ctx context.Context, caller domain.Identity, sessionID, participantID string) (domain.Certificate, error) {
	if caller.Role != domain.RoleAdmin && caller.UserID != participantID {
		return domain.Certificate{}, domain.Forbidden("only admins or the participant may generate this certificate")
	}
	record, err := s.gate.GetOrCreate(ctx, participantID, sessionID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if err := CheckEligible(record); err != nil {
		return domain.Certificate{}, err
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Certificate{}, err
	}
	program, err := s.programs.GetProgram(ctx, session.ProgramID)
	if errors.Is(err, domain.ErrNotFound) {
		program, err = domain.Program{ID: session.ProgramID, Name: "Training Program"}, nil
	}
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("get program: %w", err)
	}

	cert, err := s.renderer.RenderCertificate(ctx, CertificateRequest{
		ParticipantID: participantID,
		Session:       session,
		Program:       program,
	})
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("render certificate: %w", err)
	}
	s.log.Info("certificate issued",
		zap.String(logger.FieldParticipantID, participantID),
		zap.String(logger.FieldSessionID, sessionID),
		zap.String("certificate_id", cert.ID))
	return cert, nil
}
