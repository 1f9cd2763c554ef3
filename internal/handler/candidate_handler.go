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

// CandidateHandler handles candidate-facing endpoints (catalog, exam taking,
// results).
type CandidateHandler struct {
	sessionService *service.ExamSessionService
	examService    *service.ExamService
	certService    *service.CertificateService
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(
	sessionService *service.ExamSessionService,
	examService *service.ExamService,
	certService *service.CertificateService,
) *CandidateHandler {
	return &CandidateHandler{
		sessionService: sessionService,
		examService:    examService,
		certService:    certService,
	}
}

// GetCatalog godoc
// GET /api/v1/candidate/exams
// Returns all active exams.
func (h *CandidateHandler) GetCatalog(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.examService.Catalog(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartExam godoc
// POST /api/v1/candidate/exams/:exam_id/start
// Starts a new session or resumes the unfinished one (idempotent).
func (h *CandidateHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.sessionService.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotAvailable):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		case errors.Is(err, service.ErrPaymentRequired):
			response.Fail(c, http.StatusPaymentRequired, response.ErrPaymentRequired)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetPaper godoc
// GET /api/v1/candidate/sessions/:session_id/paper
// Returns the question paper for an in-progress session the candidate owns.
func (h *CandidateHandler) GetPaper(c *gin.Context) {
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

	paper, err := h.examService.Paper(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetSessionState godoc
// GET /api/v1/candidate/sessions/:session_id
// Returns the session with advisory time remaining.
func (h *CandidateHandler) GetSessionState(c *gin.Context) {
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

	state, err := h.sessionService.GetActive(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SubmitExam godoc
// POST /api/v1/candidate/sessions/:session_id/submit
// Submits answers, auto-grades, and closes the session exactly once.
func (h *CandidateHandler) SubmitExam(c *gin.Context) {
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

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), claims.UserID, sessionID, req.Answers)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetResult godoc
// GET /api/v1/candidate/sessions/:session_id/result
// Returns the final result for a submitted session.
func (h *CandidateHandler) GetResult(c *gin.Context) {
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

	result, err := h.sessionService.Result(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetAttempts godoc
// GET /api/v1/candidate/attempts
// Returns the candidate's session history, newest first.
func (h *CandidateHandler) GetAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.sessionService.Attempts(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if attempts == nil {
		attempts = []model.ExamSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetCertificates godoc
// GET /api/v1/candidate/certificates
// Returns the candidate's earned certificates.
func (h *CandidateHandler) GetCertificates(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	certs, err := h.certService.ListForCandidate(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if certs == nil {
		certs = []repository.CandidateCertificate{}
	}

	response.Success(c, http.StatusOK, gin.H{"certificates": certs})
}

// failSession maps session lifecycle errors to API error codes.
func (h *CandidateHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotOwner)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrNotSubmitted)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
