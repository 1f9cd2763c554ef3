package handler

import (
	"errors"
	"net/http"

	"github.com/ciltra/ciltra-backend/internal/middleware"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/response"
	"github.com/ciltra/ciltra-backend/internal/service"
	"github.com/ciltra/ciltra-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	candidates  service.CandidateReader
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, candidates service.CandidateReader) *AuthHandler {
	return &AuthHandler{authService: authService, candidates: candidates}
}

// CandidateLogin godoc
// POST /api/v1/auth/candidate/login
// Validates email + password, returns JWT.
func (h *AuthHandler) CandidateLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, candidate, err := h.authService.LoginCandidate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"candidate": gin.H{
			"id":    candidate.ID,
			"email": candidate.Email,
			"name":  candidate.Name,
		},
	})
}

// ExaminerLogin godoc
// POST /api/v1/auth/examiner/login
// Validates email + password, returns JWT.
func (h *AuthHandler) ExaminerLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, examiner, err := h.authService.LoginExaminer(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"examiner": gin.H{
			"id":    examiner.ID,
			"email": examiner.Email,
			"name":  examiner.Name,
		},
	})
}

// GetCandidateProfile godoc
// GET /api/v1/auth/candidate/me
// Returns the profile of the currently authenticated candidate.
func (h *AuthHandler) GetCandidateProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	candidate, err := h.candidates.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"candidate": gin.H{
			"id":    candidate.ID,
			"email": candidate.Email,
			"name":  candidate.Name,
		},
	})
}
