package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepforge/studytrack/internal/model"
	"github.com/prepforge/studytrack/internal/repository"
	"github.com/prepforge/studytrack/internal/response"
	"github.com/prepforge/studytrack/internal/validator"
)

// AnswerHandler is the answer intake path: it feeds the question state store
// the statistics core reads from.
type AnswerHandler struct {
	states *repository.QuestionStateRepository
}

// NewAnswerHandler creates a new AnswerHandler.
func NewAnswerHandler(states *repository.QuestionStateRepository) *AnswerHandler {
	return &AnswerHandler{states: states}
}

// Submit godoc
// POST /api/v1/study/exams/:exam_code/answers
// Records an answer: updates the live question state (first answer kept,
// latest overwritten) and enqueues durable persistence.
func (h *AnswerHandler) Submit(c *gin.Context) {
	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.states.RecordAnswer(c.Request.Context(), c.Param("exam_code"), req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_index": req.QuestionIndex,
		"state":          state,
	})
}

// State godoc
// GET /api/v1/study/exams/:exam_code/state
// Returns the full per-question state for the exam, for UI resume.
func (h *AnswerHandler) State(c *gin.Context) {
	states, err := h.states.Snapshot(c.Request.Context(), c.Param("exam_code"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": states})
}
