package handler

import (
	"errors"
	"net/http"

	"github.com/ciltra/ciltra-backend/internal/response"
	"github.com/ciltra/ciltra-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// CertificateHandler serves public certificate verification.
type CertificateHandler struct {
	certService *service.CertificateService
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certService *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certService: certService}
}

// VerifyCertificate godoc
// GET /api/v1/public/certificates/:code
// Resolves a certificate code to its exam and holder. No authentication.
func (h *CertificateHandler) VerifyCertificate(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.certService.Verify(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrCertificateNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificate": view})
}
