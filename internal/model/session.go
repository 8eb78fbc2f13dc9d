package model

import (
	"time"

	"github.com/google/uuid"
)

// UnratedDifficulty is the reserved label for questions with no difficulty tag.
const UnratedDifficulty = "unrated"

// DifficultyBucket aggregates per-difficulty answer counts.
// Invariants: answered <= total and correct <= answered.
type DifficultyBucket struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
	Total    int `json:"total"`
}

// Progress is the overall answer tally across all tracked questions.
type Progress struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
	Total    int `json:"total"`
}

// Snapshot is the aggregate statistics derived from question state at one
// instant. It is what a session update or finalize carries.
type Snapshot struct {
	QuestionsAnswered    int                         `json:"questions_answered"`
	CorrectAnswers       int                         `json:"correct_answers"`
	Accuracy             float64                     `json:"accuracy"`
	TimeSpentMs          int64                       `json:"time_spent_ms"`
	CompletionPercentage float64                     `json:"completion_percentage"`
	DifficultyBreakdown  map[string]DifficultyBucket `json:"difficulty_breakdown"`
}

// StudySession represents one study sitting for an exam. A session with no
// EndedAt is pending and open for updates; once EndedAt is set the record is
// an immutable history entry.
type StudySession struct {
	ID                   uuid.UUID                   `json:"id"`
	ExamCode             string                      `json:"exam_code"`
	ExamName             string                      `json:"exam_name"`
	StartedAt            time.Time                   `json:"started_at"`
	EndedAt              *time.Time                  `json:"ended_at,omitempty"`
	QuestionsAnswered    int                         `json:"questions_answered"`
	CorrectAnswers       int                         `json:"correct_answers"`
	Accuracy             float64                     `json:"accuracy"`
	TimeSpentMs          int64                       `json:"time_spent_ms"`
	CompletionPercentage float64                     `json:"completion_percentage"`
	DifficultyBreakdown  map[string]DifficultyBucket `json:"difficulty_breakdown"`
	// UpdatedAt is the wall-clock time of the last persisted snapshot.
	// Startup recovery uses it as the end time of sessions left pending by
	// an unclean shutdown.
	UpdatedAt time.Time `json:"updated_at"`
}

// Pending reports whether the session is still open for updates.
func (s *StudySession) Pending() bool {
	return s.EndedAt == nil
}

// ApplySnapshot merges an aggregate snapshot into the session. It never
// touches EndedAt; callers own the pending/finalized transition.
func (s *StudySession) ApplySnapshot(snap Snapshot, at time.Time) {
	s.QuestionsAnswered = snap.QuestionsAnswered
	s.CorrectAnswers = snap.CorrectAnswers
	s.Accuracy = snap.Accuracy
	s.TimeSpentMs = snap.TimeSpentMs
	s.CompletionPercentage = snap.CompletionPercentage
	s.DifficultyBreakdown = snap.DifficultyBreakdown
	s.UpdatedAt = at
}

// Clone returns a deep copy so callers can hand out session values without
// exposing the registry's mutable record.
func (s *StudySession) Clone() *StudySession {
	out := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.DifficultyBreakdown != nil {
		out.DifficultyBreakdown = make(map[string]DifficultyBucket, len(s.DifficultyBreakdown))
		for k, v := range s.DifficultyBreakdown {
			out.DifficultyBreakdown[k] = v
		}
	}
	return &out
}

// StartSessionRequest is the payload for opening a study session.
type StartSessionRequest struct {
	ExamCode string `json:"exam_code" binding:"required,min=1,max=64"`
	ExamName string `json:"exam_name" binding:"required,min=1,max=255"`
}
