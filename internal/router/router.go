package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/prepforge/studytrack/internal/config"
	"github.com/prepforge/studytrack/internal/handler"
	"github.com/prepforge/studytrack/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Answer  *handler.AnswerHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Study API ─────────────────────────────────────────────────────
	study := router.Group("/api/v1/study")
	{
		study.POST("/sessions", handlers.Session.Start)
		study.GET("/exams/:exam_code/session", handlers.Session.Current)
		study.GET("/exams/:exam_code/history", handlers.Session.History)

		// Lifecycle reports from the browser. Unload is sendBeacon-friendly.
		study.POST("/exams/:exam_code/hidden", handlers.Session.Hidden)
		study.POST("/exams/:exam_code/unload", handlers.Session.Unload)

		// Answer intake and UI resume.
		study.POST("/exams/:exam_code/answers", handlers.Answer.Submit)
		study.GET("/exams/:exam_code/state", handlers.Answer.State)
	}

	// ─── Live monitor ──────────────────────────────────────────────────
	router.GET("/ws/v1/exams/:exam_code/monitor", handlers.Monitor.Stream)

	return router
}
