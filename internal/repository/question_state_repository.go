package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/config"
	"github.com/prepforge/studytrack/internal/model"
)

// QuestionStateRepository holds the live per-question answer state in a
// Redis hash per exam (field = question index, value = JSON QuestionState).
// The statistics core reads it through Snapshot and never mutates it; only
// the answer intake path writes.
type QuestionStateRepository struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewQuestionStateRepository creates a new QuestionStateRepository.
func NewQuestionStateRepository(rdb *redis.Client, log zerolog.Logger) *QuestionStateRepository {
	return &QuestionStateRepository{
		rdb: rdb,
		log: log.With().Str("component", "question_state_repo").Logger(),
	}
}

// Snapshot reads the full question state for an exam. Called fresh on every
// lifecycle trigger. Malformed entries are skipped with a warning rather
// than blocking statistics for the whole exam.
func (r *QuestionStateRepository) Snapshot(ctx context.Context, examCode string) (map[int]model.QuestionState, error) {
	fields, err := r.rdb.HGetAll(ctx, config.CacheKey.QuestionStatesKey(examCode)).Result()
	if err != nil {
		return nil, fmt.Errorf("read question states: %w", err)
	}

	states := make(map[int]model.QuestionState, len(fields))
	for field, raw := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			r.log.Warn().Str("exam_code", examCode).Str("field", field).Msg("Skipping non-numeric question index")
			continue
		}
		var st model.QuestionState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			r.log.Warn().Err(err).Str("exam_code", examCode).Int("index", idx).Msg("Skipping malformed question state")
			continue
		}
		states[idx] = st
	}
	return states, nil
}

// RecordAnswer merges a submitted answer into the question's state and
// enqueues it for durable persistence. The first recorded answer is written
// once and kept; later answers only move LatestAnswer. Concurrent writers
// (the same exam open in two tabs) are last-write-wins.
func (r *QuestionStateRepository) RecordAnswer(ctx context.Context, examCode string, req model.SubmitAnswerRequest) (model.QuestionState, error) {
	key := config.CacheKey.QuestionStatesKey(examCode)
	field := strconv.Itoa(req.QuestionIndex)

	var st model.QuestionState
	raw, err := r.rdb.HGet(ctx, key, field).Result()
	switch {
	case err == redis.Nil:
		// First time this question is touched.
	case err != nil:
		return model.QuestionState{}, fmt.Errorf("read question state: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			r.log.Warn().Err(err).Str("exam_code", examCode).Int("index", req.QuestionIndex).Msg("Replacing malformed question state")
			st = model.QuestionState{}
		}
	}

	now := time.Now()
	answer := &model.Answer{
		SelectedAnswers: req.SelectedAnswers,
		IsCorrect:       req.IsCorrect,
		AnsweredAt:      now,
	}

	first := st.FirstAnswer == nil
	if first {
		st.FirstAnswer = answer
	}
	st.LatestAnswer = answer
	st.Status = model.QuestionStatusAnswered
	if req.Difficulty != "" {
		st.Difficulty = req.Difficulty
	}
	st.Favorite = req.Favorite

	encoded, err := json.Marshal(st)
	if err != nil {
		return model.QuestionState{}, fmt.Errorf("marshal question state: %w", err)
	}
	if err := r.rdb.HSet(ctx, key, field, encoded).Err(); err != nil {
		return model.QuestionState{}, fmt.Errorf("write question state: %w", err)
	}

	event := model.AnswerEvent{
		ExamCode:        examCode,
		QuestionIndex:   req.QuestionIndex,
		SelectedAnswers: req.SelectedAnswers,
		IsCorrect:       req.IsCorrect,
		First:           first,
		Status:          string(st.Status),
		Difficulty:      st.Difficulty,
		Favorite:        st.Favorite,
		AnsweredAt:      now,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return st, fmt.Errorf("marshal answer event: %w", err)
	}
	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		// The live state is updated; durable history will catch up when
		// the queue is reachable again.
		r.log.Warn().Err(err).Str("exam_code", examCode).Msg("Failed to enqueue answer for persistence")
	}

	return st, nil
}
