package handler

import (
	"errors"
	"net/http"

	"github.com/ciltra/ciltra-backend/internal/middleware"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/repository"
	"github.com/ciltra/ciltra-backend/internal/response"
	"github.com/ciltra/ciltra-backend/internal/service"
	"github.com/ciltra/ciltra-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GradingHandler handles examiner-facing endpoints: the grading queue,
// manual marks, entitlement grants, and dashboard stats.
type GradingHandler struct {
	gradingService     *service.GradingService
	entitlementService *service.EntitlementService
	statsService       *service.StatsService
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(
	gradingService *service.GradingService,
	entitlementService *service.EntitlementService,
	statsService *service.StatsService,
) *GradingHandler {
	return &GradingHandler{
		gradingService:     gradingService,
		entitlementService: entitlementService,
		statsService:       statsService,
	}
}

// GetPendingSessions godoc
// GET /api/v1/examiner/grading/pending
// Returns submissions awaiting manual marks.
func (h *GradingHandler) GetPendingSessions(c *gin.Context) {
	sessions, err := h.gradingService.ListPending(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if sessions == nil {
		sessions = []repository.PendingSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetGradedSessions godoc
// GET /api/v1/examiner/grading/history
// Returns fully graded submissions.
func (h *GradingHandler) GetGradedSessions(c *gin.Context) {
	sessions, err := h.gradingService.ListGraded(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if sessions == nil {
		sessions = []repository.PendingSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetSessionDetail godoc
// GET /api/v1/examiner/grading/sessions/:session_id
// Returns one submission with its questions and answers for marking.
func (h *GradingHandler) GetSessionDetail(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	detail, err := h.gradingService.SessionDetail(c.Request.Context(), sessionID)
	if err != nil {
		h.failGrading(c, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// SubmitGrades godoc
// POST /api/v1/examiner/grading/sessions/:session_id/grades
// Applies a batch of manual marks and recomputes the session score.
func (h *GradingHandler) SubmitGrades(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitGradesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.gradingService.SubmitGrades(c.Request.Context(), claims.UserID, sessionID, req.Grades)
	if err != nil {
		h.failGrading(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetStats godoc
// GET /api/v1/examiner/stats
// Returns platform-wide counters for the dashboard.
func (h *GradingHandler) GetStats(c *gin.Context) {
	stats, err := h.statsService.Platform(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// GrantEntitlement godoc
// POST /api/v1/examiner/entitlements
// Grants a candidate access to a priced exam without payment.
func (h *GradingHandler) GrantEntitlement(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.GrantEntitlementRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ent, err := h.entitlementService.Grant(c.Request.Context(), claims.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotAvailable):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		case errors.Is(err, service.ErrCandidateNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"entitlement": ent})
}

// failGrading maps grading workflow errors to API error codes.
func (h *GradingHandler) failGrading(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrNotSubmitted)
	case errors.Is(err, service.ErrInvalidMark):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidMark)
	case errors.Is(err, service.ErrExamAutoGraded):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
