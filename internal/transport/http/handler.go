package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
	"training-gate-service/pkg/logger"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// Handler exposes the training use cases as JSON over HTTP. Authentication happens upstream;
// the gateway forwards the caller's identity in the X-User-ID and X-User-Role headers.
type Handler struct {
	service *app.TrainingService
	log     *zap.Logger
	status  *WSHandler
}

func NewHandler(service *app.TrainingService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log, status: NewWSHandler(service, log)}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /sessions/{sessionID}/access/me", h.myAccess)
	mux.HandleFunc("GET /sessions/{sessionID}/access", h.listAccess)
	mux.HandleFunc("POST /sessions/{sessionID}/access/release", h.setReleased)
	mux.HandleFunc("POST /sessions/{sessionID}/access/release-existing", h.releaseExisting)
	mux.HandleFunc("PATCH /sessions/{sessionID}/access/{participantID}", h.setAccess)
	mux.HandleFunc("GET /sessions/{sessionID}/status", h.sessionStatus)
	mux.HandleFunc("GET /sessions/{sessionID}/status/ws", h.status.ServeWS)

	mux.HandleFunc("GET /sessions/{sessionID}/tests", h.availableTests)
	mux.HandleFunc("GET /sessions/{sessionID}/tests/{testID}", h.presentTest)
	mux.HandleFunc("POST /sessions/{sessionID}/tests/{testID}/submissions", h.submitTest)
	mux.HandleFunc("POST /sessions/{sessionID}/stages/{stage}/complete", h.completeStage)
	mux.HandleFunc("PUT /tests/{testID}", h.replaceTest)

	mux.HandleFunc("GET /results/{resultID}", h.review)
	mux.HandleFunc("GET /sessions/{sessionID}/results", h.sessionResults)
	mux.HandleFunc("GET /participants/{participantID}/results", h.participantResults)

	mux.HandleFunc("GET /sessions/{sessionID}/assigned-participants", h.assignedParticipants)
	mux.HandleFunc("GET /sessions/{sessionID}/allocations", h.allocations)
	mux.HandleFunc("POST /sessions/{sessionID}/participants/{participantID}/certificate", h.issueCertificate)
	return mux
}

type releaseRequest struct {
	Stage          string   `json:"stage"`
	Enabled        bool     `json:"enabled"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
}

type releaseResponse struct {
	Updated int `json:"updated"`
}

type submitRequest struct {
	Answers         []int `json:"answers"`
	QuestionIndices []int `json:"question_indices,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Updated is set on bulk releases that failed part way; those records stay released.
	Updated *int `json:"updated,omitempty"`
}

func (h *Handler) myAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	record, err := h.service.MyAccess(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, record, err)
}

func (h *Handler) listAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListAccess(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, records, err)
}

func (h *Handler) setReleased(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.service.SetReleased(r.Context(), caller, r.PathValue("sessionID"), stage, req.Enabled, req.ParticipantIDs)
	h.respondRelease(w, r, n, err)
}

func (h *Handler) releaseExisting(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.service.ReleaseExisting(r.Context(), caller, r.PathValue("sessionID"), stage)
	h.respondRelease(w, r, n, err)
}

func (h *Handler) setAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	var patch domain.AccessPatch
	if !h.decode(w, r, &patch) {
		return
	}
	record, err := h.service.SetAccess(r.Context(), caller, r.PathValue("participantID"), r.PathValue("sessionID"), patch)
	h.respond(w, r, record, err)
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	summary, err := h.service.SessionStatus(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, summary, err)
}

func (h *Handler) availableTests(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	tests, err := h.service.AvailableTests(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, tests, err)
}

func (h *Handler) presentTest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	test, err := h.service.PresentTest(r.Context(), caller, r.PathValue("sessionID"), r.PathValue("testID"))
	h.respond(w, r, test, err)
}

func (h *Handler) submitTest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.SubmitTest(r.Context(), caller, domain.Submission{
		TestID:          r.PathValue("testID"),
		SessionID:       r.PathValue("sessionID"),
		Answers:         req.Answers,
		QuestionIndices: req.QuestionIndices,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) completeStage(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	stage, err := domain.ParseStage(r.PathValue("stage"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.CompleteStage(r.Context(), caller, r.PathValue("sessionID"), stage); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replaceTest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	var test domain.Test
	if !h.decode(w, r, &test) {
		return
	}
	test.ID = r.PathValue("testID")
	saved, err := h.service.ReplaceTest(r.Context(), caller, test)
	h.respond(w, r, saved, err)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	review, err := h.service.Review(r.Context(), caller, r.PathValue("resultID"))
	h.respond(w, r, review, err)
}

func (h *Handler) sessionResults(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	results, err := h.service.SessionResults(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, results, err)
}

func (h *Handler) participantResults(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	results, err := h.service.ParticipantResults(r.Context(), caller, r.PathValue("participantID"))
	h.respond(w, r, results, err)
}

func (h *Handler) assignedParticipants(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	ids, err := h.service.AssignedParticipants(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, ids, err)
}

func (h *Handler) allocations(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	allocations, err := h.service.Allocations(r.Context(), caller, r.PathValue("sessionID"))
	h.respond(w, r, allocations, err)
}

func (h *Handler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	cert, err := h.service.IssueCertificate(r.Context(), caller, r.PathValue("sessionID"), r.PathValue("participantID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cert)
}

// identity reads the caller from gateway headers, falling back to query parameters for
// websocket clients that cannot set headers.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	caller, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "missing caller identity"})
	}
	return caller, ok
}

func identityFrom(r *http.Request) (domain.Identity, bool) {
	userID := r.Header.Get(headerUserID)
	role := r.Header.Get(headerUserRole)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if role == "" {
		role = r.URL.Query().Get("role")
	}
	if userID == "" || role == "" {
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: userID, Role: domain.Role(role)}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// respondRelease keeps the updated count in the body when a release fails after touching
// some records, since nothing is rolled back.
func (h *Handler) respondRelease(w http.ResponseWriter, r *http.Request, updated int, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, releaseResponse{Updated: updated})
		return
	}
	status, body := h.errorBody(r, err)
	if updated > 0 {
		body.Updated = &updated
	}
	writeJSON(w, status, body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.errorBody(r, err)
	writeJSON(w, status, body)
}

func (h *Handler) errorBody(r *http.Request, err error) (int, errorResponse) {
	var typed *domain.Error
	if !errors.As(err, &typed) {
		h.log.Error("request failed",
			zap.String(logger.FieldOperation, r.Method+" "+r.URL.Path),
			zap.Error(err))
		return http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"}
	}
	return statusFor(typed.Kind), errorResponse{Code: string(typed.Kind), Message: typed.Message}
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindMalformedSubmission, domain.KindAllocationInputInvalid:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
