package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ciltra/ciltra-backend/internal/audit"
	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/database"
	"github.com/ciltra/ciltra-backend/internal/handler"
	"github.com/ciltra/ciltra-backend/internal/logger"
	"github.com/ciltra/ciltra-backend/internal/repository"
	"github.com/ciltra/ciltra-backend/internal/router"
	"github.com/ciltra/ciltra-backend/internal/service"
	"github.com/ciltra/ciltra-backend/internal/validator"
	"github.com/ciltra/ciltra-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Ciltra Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	candidateRepo := repository.NewCandidateRepository(pool)
	examinerRepo := repository.NewExaminerRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	entitlementRepo := repository.NewEntitlementRepository(pool)
	certRepo := repository.NewCertificateRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	auditor := audit.NewPublisher(rdb, log)
	broadcaster := service.NewRedisBroadcaster(rdb, log)

	authService := service.NewAuthService(cfg, candidateRepo, examinerRepo)
	accessGate := service.NewAccessGate(entitlementRepo)
	examService := service.NewExamService(examRepo, questionRepo, sessionRepo, rdb, log)
	sessionService := service.NewExamSessionService(
		cfg, examRepo, questionRepo, sessionRepo, certRepo, accessGate, auditor, broadcaster, log)
	gradingService := service.NewGradingService(
		cfg, examRepo, questionRepo, sessionRepo, answerRepo, certRepo, auditor, log)
	certService := service.NewCertificateService(certRepo, sessionRepo, examRepo, candidateRepo)
	entitlementService := service.NewEntitlementService(examRepo, candidateRepo, entitlementRepo, log)
	statsService := service.NewStatsService(candidateRepo, examRepo, certRepo, sessionRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, candidateRepo),
		Candidate:   handler.NewCandidateHandler(sessionService, examService, certService),
		Grading:     handler.NewGradingHandler(gradingService, entitlementService, statsService),
		Certificate: handler.NewCertificateHandler(certService),
		Monitor:     handler.NewMonitorHandler(rdb, gradingService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	auditWorker := worker.NewAuditWorker(pool, rdb, log)
	go auditWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
