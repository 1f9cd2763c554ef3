package router

import (
	"net/http"
	"time"

	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/handler"
	"github.com/ciltra/ciltra-backend/internal/middleware"
	"github.com/ciltra/ciltra-backend/internal/response"
	"github.com/ciltra/ciltra-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Candidate   *handler.CandidateHandler
	Grading     *handler.GradingHandler
	Certificate *handler.CertificateHandler
	Monitor     *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/certificates/:code", handlers.Certificate.VerifyCertificate)
	}

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/candidate/login", handlers.Auth.CandidateLogin)
		auth.POST("/examiner/login", handlers.Auth.ExaminerLogin)

		// Authenticated profile routes
		auth.GET("/candidate/me", middleware.RequireCandidateJWT(authService), handlers.Auth.GetCandidateProfile)
	}

	// ─── 2. Candidate Group (JWT) ──────────────────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(middleware.RequireCandidateJWT(authService))
	{
		candidateAPI.GET("/exams", handlers.Candidate.GetCatalog)
		candidateAPI.POST("/exams/:exam_id/start", handlers.Candidate.StartExam)
		candidateAPI.GET("/sessions/:session_id", handlers.Candidate.GetSessionState)
		candidateAPI.GET("/sessions/:session_id/paper", handlers.Candidate.GetPaper)
		candidateAPI.POST("/sessions/:session_id/submit", handlers.Candidate.SubmitExam)
		candidateAPI.GET("/sessions/:session_id/result", handlers.Candidate.GetResult)
		candidateAPI.GET("/attempts", handlers.Candidate.GetAttempts)
		candidateAPI.GET("/certificates", handlers.Candidate.GetCertificates)
	}

	// ─── 3. Examiner Group (JWT) ───────────────────────────────────────
	examinerAPI := router.Group("/api/v1/examiner")
	examinerAPI.Use(middleware.RequireExaminerJWT(authService))
	{
		examinerAPI.GET("/grading/pending", handlers.Grading.GetPendingSessions)
		examinerAPI.GET("/grading/history", handlers.Grading.GetGradedSessions)
		examinerAPI.GET("/grading/sessions/:session_id", handlers.Grading.GetSessionDetail)
		examinerAPI.POST("/grading/sessions/:session_id/grades", handlers.Grading.SubmitGrades)
		examinerAPI.GET("/stats", handlers.Grading.GetStats)
		examinerAPI.POST("/entitlements", handlers.Grading.GrantEntitlement)
	}

	// ─── 4. WebSocket Group (Examiner WS Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireExaminerWSAuth(authService))
	{
		ws.GET("/examiner/grading/stream", handlers.Monitor.GradingQueueStream)
	}

	return router
}
