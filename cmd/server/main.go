package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/config"
	"github.com/prepforge/studytrack/internal/database"
	"github.com/prepforge/studytrack/internal/handler"
	"github.com/prepforge/studytrack/internal/lifecycle"
	"github.com/prepforge/studytrack/internal/logger"
	"github.com/prepforge/studytrack/internal/repository"
	"github.com/prepforge/studytrack/internal/router"
	"github.com/prepforge/studytrack/internal/scheduler"
	"github.com/prepforge/studytrack/internal/session"
	"github.com/prepforge/studytrack/internal/validator"
	"github.com/prepforge/studytrack/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Dur("snapshot_interval", cfg.SnapshotInterval).
		Msg("Starting StudyTrack")

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
	sessionRepo := repository.NewSessionRepository(pool)
	stateRepo := repository.NewQuestionStateRepository(rdb, log)
	monitorPub := repository.NewMonitorPublisher(rdb)

	// ─── Session Core ──────────────────────────────────────────────────
	manager := session.NewManager(sessionRepo, log)

	// Startup recovery: finalize sessions a previous process left pending.
	// Must complete before any new session can be started.
	if err := manager.RecoverPending(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup session recovery failed")
	}

	bridge := lifecycle.NewHostBridge(cfg.SnapshotInterval)
	sched := scheduler.New(manager, stateRepo, bridge, monitorPub, log)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(manager, sessionRepo, bridge, sched),
		Answer:  handler.NewAnswerHandler(stateRepo),
		Monitor: handler.NewMonitorHandler(rdb, manager, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	go answerWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

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

	// 2. Finalize pending sessions — the server-side unload. Startup
	// recovery covers the case where we die before this runs.
	schedCancel()
	sched.Shutdown(shutdownCtx)

	// 3. Stop the answer worker and wait for its queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow the worker to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
