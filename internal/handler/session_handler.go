package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prepforge/studytrack/internal/lifecycle"
	"github.com/prepforge/studytrack/internal/model"
	"github.com/prepforge/studytrack/internal/repository"
	"github.com/prepforge/studytrack/internal/response"
	"github.com/prepforge/studytrack/internal/scheduler"
	"github.com/prepforge/studytrack/internal/session"
	"github.com/prepforge/studytrack/internal/validator"
)

const defaultHistoryLimit = 50

// SessionHandler exposes the study session lifecycle over HTTP. The browser
// UI reports its lifecycle events here; the scheduler and session manager
// decide what they mean.
type SessionHandler struct {
	manager  *session.Manager
	sessions *repository.SessionRepository
	bridge   *lifecycle.HostBridge
	sched    *scheduler.Scheduler
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	manager *session.Manager,
	sessions *repository.SessionRepository,
	bridge *lifecycle.HostBridge,
	sched *scheduler.Scheduler,
) *SessionHandler {
	return &SessionHandler{
		manager:  manager,
		sessions: sessions,
		bridge:   bridge,
		sched:    sched,
	}
}

// Start godoc
// POST /api/v1/study/sessions
// Opens a pending session for an exam. 409 when one is already pending —
// callers should fetch the current session instead of starting again.
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	s, err := h.manager.Start(c.Request.Context(), req.ExamCode, req.ExamName)
	if err != nil {
		var conflict *session.ConflictError
		if errors.As(err, &conflict) {
			response.Fail(c, http.StatusConflict, response.ErrSessionConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.sched.SessionStarted()

	response.Success(c, http.StatusCreated, gin.H{"session": s})
}

// Current godoc
// GET /api/v1/study/exams/:exam_code/session
// Returns the pending session for the exam, or null when none is open.
func (h *SessionHandler) Current(c *gin.Context) {
	s := h.manager.Current(c.Param("exam_code"))
	response.Success(c, http.StatusOK, gin.H{"session": s})
}

// Hidden godoc
// POST /api/v1/study/exams/:exam_code/hidden
// The study view became hidden. Snapshots and updates, never finalizes —
// the user may come back.
func (h *SessionHandler) Hidden(c *gin.Context) {
	h.bridge.EmitHidden(c.Param("exam_code"))
	response.Success(c, http.StatusAccepted, gin.H{"status": "queued"})
}

// Unload godoc
// POST /api/v1/study/exams/:exam_code/unload
// The tab or window is closing; finalize the pending session. Designed for
// navigator.sendBeacon — the response body is never read.
func (h *SessionHandler) Unload(c *gin.Context) {
	h.bridge.EmitUnload(c.Param("exam_code"))
	response.Success(c, http.StatusAccepted, gin.H{"status": "queued"})
}

// History godoc
// GET /api/v1/study/exams/:exam_code/history
// Returns finalized sessions for the exam, newest first.
func (h *SessionHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	history, err := h.sessions.ListByExamCode(c.Request.Context(), c.Param("exam_code"), limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if history == nil {
		history = []model.StudySession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": history})
}
