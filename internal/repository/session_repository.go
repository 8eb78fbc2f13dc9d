package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepforge/studytrack/internal/model"
)

// SessionRepository persists study sessions in PostgreSQL. It implements the
// session manager's Store contract: whole-record upserts and a pending scan
// for startup recovery.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, exam_code, exam_name, started_at, ended_at,
	questions_answered, correct_answers, accuracy, time_spent_ms,
	completion_percentage, difficulty_breakdown, updated_at`

// Save upserts the full session record. Updates are last-write-wins; the
// in-memory registry is the source of truth while a session is pending.
func (r *SessionRepository) Save(ctx context.Context, s *model.StudySession) error {
	breakdown, err := json.Marshal(s.DifficultyBreakdown)
	if err != nil {
		return fmt.Errorf("marshal difficulty breakdown: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO study_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE
		 SET ended_at = EXCLUDED.ended_at,
		     questions_answered = EXCLUDED.questions_answered,
		     correct_answers = EXCLUDED.correct_answers,
		     accuracy = EXCLUDED.accuracy,
		     time_spent_ms = EXCLUDED.time_spent_ms,
		     completion_percentage = EXCLUDED.completion_percentage,
		     difficulty_breakdown = EXCLUDED.difficulty_breakdown,
		     updated_at = EXCLUDED.updated_at`,
		s.ID, s.ExamCode, s.ExamName, s.StartedAt, s.EndedAt,
		s.QuestionsAnswered, s.CorrectAnswers, s.Accuracy, s.TimeSpentMs,
		s.CompletionPercentage, breakdown, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ListPending returns every persisted session that has no end time. Startup
// recovery finalizes each of them.
func (r *SessionRepository) ListPending(ctx context.Context) ([]model.StudySession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE ended_at IS NULL
		 ORDER BY started_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// ListByExamCode returns the finalized session history for an exam, newest
// first.
func (r *SessionRepository) ListByExamCode(ctx context.Context, examCode string, limit int) ([]model.StudySession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM study_sessions
		 WHERE exam_code = $1 AND ended_at IS NOT NULL
		 ORDER BY started_at DESC
		 LIMIT $2`,
		examCode, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]model.StudySession, error) {
	var sessions []model.StudySession
	for rows.Next() {
		var s model.StudySession
		var breakdown []byte
		if err := rows.Scan(
			&s.ID, &s.ExamCode, &s.ExamName, &s.StartedAt, &s.EndedAt,
			&s.QuestionsAnswered, &s.CorrectAnswers, &s.Accuracy, &s.TimeSpentMs,
			&s.CompletionPercentage, &breakdown, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if len(breakdown) > 0 {
			if err := json.Unmarshal(breakdown, &s.DifficultyBreakdown); err != nil {
				return nil, fmt.Errorf("unmarshal difficulty breakdown: %w", err)
			}
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
