// Package session owns the study session lifecycle: at most one pending
// session per exam code, updated in place until it is finalized exactly once.
// Finalized is absorbing — later updates and repeat finalizes are silent
// no-ops, which is what makes overlapping lifecycle triggers (timer tick,
// tab hidden, unload, shutdown) harmless without ordering guarantees.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/model"
)

// Store is the durable backend the manager persists sessions through.
type Store interface {
	// Save upserts the full session record.
	Save(ctx context.Context, s *model.StudySession) error
	// ListPending returns all persisted sessions that have no end time.
	ListPending(ctx context.Context) ([]model.StudySession, error)
}

// ConflictError is returned by Start when a pending session already exists
// for the exam code. Callers that want to resume should use Current instead
// of starting a new session.
type ConflictError struct {
	ExamCode string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a pending session already exists for exam %q", e.ExamCode)
}

// Manager is the process-wide session registry. It is safe for concurrent
// use; the mutex is the compare-and-set backing the no-op rules need when
// triggers arrive from more than one goroutine.
type Manager struct {
	mu      sync.Mutex
	store   Store
	pending map[string]*model.StudySession // exam code → pending session
	log     zerolog.Logger
}

// NewManager creates a Manager with an empty registry. Run RecoverPending
// once before starting any session.
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		pending: make(map[string]*model.StudySession),
		log:     log.With().Str("component", "session_manager").Logger(),
	}
}

// Start opens a new pending session for the exam. Returns ConflictError if
// one is already pending for the same exam code.
func (m *Manager) Start(ctx context.Context, examCode, examName string) (*model.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[examCode]; ok {
		return nil, &ConflictError{ExamCode: examCode}
	}

	now := time.Now()
	s := &model.StudySession{
		ID:        uuid.New(),
		ExamCode:  examCode,
		ExamName:  examName,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.pending[examCode] = s

	m.persist(ctx, s)

	m.log.Info().
		Str("session_id", s.ID.String()).
		Str("exam_code", examCode).
		Msg("Session started")

	return s.Clone(), nil
}

// Current returns a copy of the pending session for the exam code, or nil
// when none is pending.
func (m *Manager) Current(examCode string) *model.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pending[examCode]
	if !ok {
		return nil
	}
	return s.Clone()
}

// Update applies a snapshot to the pending session with the given id and
// returns a copy of the result. If the id is unknown or the session was
// already finalized this is a silent no-op returning nil, so a tick racing a
// finalize can never touch the frozen record.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, snap model.Snapshot) *model.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findPending(id)
	if s == nil {
		m.log.Debug().Str("session_id", id.String()).Msg("Update for unknown or finalized session ignored")
		return nil
	}

	s.ApplySnapshot(snap, time.Now())
	m.persist(ctx, s)
	return s.Clone()
}

// End finalizes the pending session with the given id: merges the final
// snapshot, stamps the end time, removes it from the registry, and returns a
// copy of the frozen record. Idempotent — a second End for the same id is a
// no-op returning nil, so overlapping finalize triggers (hidden then unload,
// unload then shutdown) are safe.
func (m *Manager) End(ctx context.Context, id uuid.UUID, snap model.Snapshot) *model.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findPending(id)
	if s == nil {
		m.log.Debug().Str("session_id", id.String()).Msg("End for unknown or finalized session ignored")
		return nil
	}

	now := time.Now()
	s.ApplySnapshot(snap, now)
	s.EndedAt = &now
	delete(m.pending, s.ExamCode)

	m.persist(ctx, s)

	m.log.Info().
		Str("session_id", s.ID.String()).
		Str("exam_code", s.ExamCode).
		Int64("time_spent_ms", s.TimeSpentMs).
		Msg("Session finalized")

	return s.Clone()
}

// PendingCount reports how many sessions are currently open. The scheduler
// uses it to decide whether the periodic ticker should run at all.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// PendingSessions returns copies of all currently pending sessions.
func (m *Manager) PendingSessions() []*model.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.StudySession, 0, len(m.pending))
	for _, s := range m.pending {
		out = append(out, s.Clone())
	}
	return out
}

// RecoverPending finalizes every persisted session left pending by a
// previous process lifetime (killed before unload could run). The end time
// is the session's last persisted snapshot time, not now, so idle wall-clock
// while the process was down never inflates time spent. Run once at startup
// before any session is started; a run that finds nothing is a no-op.
func (m *Manager) RecoverPending(ctx context.Context) error {
	rows, err := m.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending sessions: %w", err)
	}

	for i := range rows {
		s := rows[i]
		clampSnapshot(&s, m.log)

		ended := s.UpdatedAt
		if ended.IsZero() {
			ended = s.StartedAt
		}
		s.EndedAt = &ended

		if err := m.store.Save(ctx, &s); err != nil {
			m.log.Warn().Err(err).
				Str("session_id", s.ID.String()).
				Msg("Failed to persist recovered session")
			continue
		}

		m.log.Info().
			Str("session_id", s.ID.String()).
			Str("exam_code", s.ExamCode).
			Time("ended_at", ended).
			Msg("Recovered orphaned session")
	}

	return nil
}

// findPending returns the registry record with the given id, or nil.
// Must be called with the mutex held.
func (m *Manager) findPending(id uuid.UUID) *model.StudySession {
	for _, s := range m.pending {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// persist writes the session through the store. A write failure is a
// warning, never an error surfaced to a lifecycle handler: the in-memory
// record stays authoritative and the next periodic tick writes again.
func (m *Manager) persist(ctx context.Context, s *model.StudySession) {
	if err := m.store.Save(ctx, s); err != nil {
		m.log.Warn().Err(err).
			Str("session_id", s.ID.String()).
			Str("exam_code", s.ExamCode).
			Msg("Session write failed, will retry on next snapshot")
	}
}

// clampSnapshot forces a persisted snapshot back into valid ranges before a
// recovery finalize. Corrupted rows are repaired, not propagated.
func clampSnapshot(s *model.StudySession, log zerolog.Logger) {
	clamped := false

	if s.QuestionsAnswered < 0 {
		s.QuestionsAnswered = 0
		clamped = true
	}
	if s.CorrectAnswers < 0 {
		s.CorrectAnswers = 0
		clamped = true
	}
	if s.CorrectAnswers > s.QuestionsAnswered {
		s.CorrectAnswers = s.QuestionsAnswered
		clamped = true
	}
	if s.TimeSpentMs < 0 {
		s.TimeSpentMs = 0
		clamped = true
	}
	if s.CompletionPercentage < 0 {
		s.CompletionPercentage = 0
		clamped = true
	}
	if s.CompletionPercentage > 100 {
		s.CompletionPercentage = 100
		clamped = true
	}
	for label, b := range s.DifficultyBreakdown {
		if b.Answered > b.Total {
			b.Answered = b.Total
			clamped = true
		}
		if b.Correct > b.Answered {
			b.Correct = b.Answered
			clamped = true
		}
		s.DifficultyBreakdown[label] = b
	}

	if clamped {
		log.Warn().
			Str("session_id", s.ID.String()).
			Str("exam_code", s.ExamCode).
			Msg("Persisted snapshot violated invariants, clamped during recovery")
	}
}
