// Package scheduler decides when a statistics snapshot is computed and what
// kind of session operation it becomes: periodic ticks and hidden reports
// update, unload reports finalize, startup recovers. Every trigger re-reads
// question state fresh from the store, so triggers firing close together
// each see the same source of truth and the session manager's no-op rules
// resolve any ordering conflict.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/lifecycle"
	"github.com/prepforge/studytrack/internal/model"
	"github.com/prepforge/studytrack/internal/session"
	"github.com/prepforge/studytrack/internal/stats"
)

// QuestionStateStore is the read-only accessor for live per-question answer
// state. The scheduler never mutates it.
type QuestionStateStore interface {
	Snapshot(ctx context.Context, examCode string) (map[int]model.QuestionState, error)
}

// Publisher broadcasts persisted session snapshots to live observers.
// Optional; a nil Publisher disables broadcasting.
type Publisher interface {
	PublishSession(ctx context.Context, s *model.StudySession) error
}

// Clock returns the current time. Swapped in tests.
type Clock func() time.Time

// Scheduler wires lifecycle triggers to snapshot computation and session
// operations.
type Scheduler struct {
	manager *session.Manager
	states  QuestionStateStore
	bridge  lifecycle.Bridge
	pub     Publisher
	log     zerolog.Logger
	now     Clock
}

// New creates a Scheduler. pub may be nil.
func New(manager *session.Manager, states QuestionStateStore, bridge lifecycle.Bridge, pub Publisher, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		manager: manager,
		states:  states,
		bridge:  bridge,
		pub:     pub,
		log:     log.With().Str("component", "scheduler").Logger(),
		now:     time.Now,
	}
}

// Run consumes the bridge's trigger stream until ctx is cancelled. All
// trigger handling happens on this one goroutine, which serializes it
// against everything else touching the registry through the manager.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Msg("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return
		case trig := <-s.bridge.Triggers():
			s.handle(ctx, trig)
		}
	}
}

// SessionStarted tells the scheduler a new pending session exists so the
// periodic ticker is running.
func (s *Scheduler) SessionStarted() {
	s.bridge.ResumeTicks()
}

// Shutdown finalizes every pending session and releases the ticker. It is
// the server-side analogue of the browser's unload: a clean stop persists
// final snapshots, while an unclean one is covered by startup recovery.
func (s *Scheduler) Shutdown(ctx context.Context) {
	for _, sess := range s.manager.PendingSessions() {
		s.finalize(ctx, sess)
	}
	s.bridge.Close()
}

func (s *Scheduler) handle(ctx context.Context, trig lifecycle.Trigger) {
	switch trig.Kind {
	case lifecycle.TriggerTick:
		for _, sess := range s.manager.PendingSessions() {
			s.update(ctx, sess)
		}
	case lifecycle.TriggerHidden:
		// Update only. The user may come back; finalizing here would
		// close a session that is still in use.
		if sess := s.manager.Current(trig.ExamCode); sess != nil {
			s.update(ctx, sess)
		}
	case lifecycle.TriggerUnload:
		if sess := s.manager.Current(trig.ExamCode); sess != nil {
			s.finalize(ctx, sess)
		}
	}

	s.reconcileTicker()
}

func (s *Scheduler) update(ctx context.Context, sess *model.StudySession) {
	snap, ok := s.snapshot(ctx, sess)
	if !ok {
		return
	}
	if updated := s.manager.Update(ctx, sess.ID, snap); updated != nil {
		s.publish(ctx, updated)
	}
}

func (s *Scheduler) finalize(ctx context.Context, sess *model.StudySession) {
	snap, ok := s.snapshot(ctx, sess)
	if !ok {
		// Question state is unreadable; finalize with the last applied
		// snapshot rather than dropping the session.
		snap = model.Snapshot{
			QuestionsAnswered:    sess.QuestionsAnswered,
			CorrectAnswers:       sess.CorrectAnswers,
			Accuracy:             sess.Accuracy,
			TimeSpentMs:          sess.TimeSpentMs,
			CompletionPercentage: sess.CompletionPercentage,
			DifficultyBreakdown:  sess.DifficultyBreakdown,
		}
	}
	if ended := s.manager.End(ctx, sess.ID, snap); ended != nil {
		s.publish(ctx, ended)
	}
}

// snapshot re-reads question state and aggregates it. Never cached between
// triggers.
func (s *Scheduler) snapshot(ctx context.Context, sess *model.StudySession) (model.Snapshot, bool) {
	states, err := s.states.Snapshot(ctx, sess.ExamCode)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_code", sess.ExamCode).
			Msg("Failed to read question state, skipping snapshot")
		return model.Snapshot{}, false
	}
	return stats.BuildSnapshot(states, sess.StartedAt, s.now()), true
}

func (s *Scheduler) publish(ctx context.Context, sess *model.StudySession) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishSession(ctx, sess); err != nil {
		s.log.Warn().Err(err).Str("exam_code", sess.ExamCode).Msg("Snapshot publish failed")
	}
}

// reconcileTicker keeps the periodic ticker running only while at least one
// session is pending.
func (s *Scheduler) reconcileTicker() {
	if s.manager.PendingCount() > 0 {
		s.bridge.ResumeTicks()
	} else {
		s.bridge.PauseTicks()
	}
}
