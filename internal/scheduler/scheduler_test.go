package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/lifecycle"
	"github.com/prepforge/studytrack/internal/model"
	"github.com/prepforge/studytrack/internal/session"
)

type memStore struct {
	saved map[uuid.UUID]model.StudySession
}

func (m *memStore) Save(_ context.Context, s *model.StudySession) error {
	m.saved[s.ID] = *s.Clone()
	return nil
}

func (m *memStore) ListPending(context.Context) ([]model.StudySession, error) {
	return nil, nil
}

type fakeStates struct {
	states map[int]model.QuestionState
	err    error
}

func (f *fakeStates) Snapshot(context.Context, string) (map[int]model.QuestionState, error) {
	return f.states, f.err
}

type fakeBridge struct {
	out     chan lifecycle.Trigger
	resumes int
	pauses  int
}

func (b *fakeBridge) Triggers() <-chan lifecycle.Trigger { return b.out }
func (b *fakeBridge) ResumeTicks()                       { b.resumes++ }
func (b *fakeBridge) PauseTicks()                        { b.pauses++ }
func (b *fakeBridge) Close()                             { b.pauses++ }

type fakePub struct {
	published []model.StudySession
}

func (p *fakePub) PublishSession(_ context.Context, s *model.StudySession) error {
	p.published = append(p.published, *s.Clone())
	return nil
}

type fixture struct {
	sched   *Scheduler
	manager *session.Manager
	store   *memStore
	states  *fakeStates
	bridge  *fakeBridge
	pub     *fakePub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memStore{saved: make(map[uuid.UUID]model.StudySession)}
	manager := session.NewManager(store, zerolog.Nop())
	states := &fakeStates{states: map[int]model.QuestionState{
		0: {Status: model.QuestionStatusAnswered, FirstAnswer: &model.Answer{SelectedAnswers: []string{"a"}, IsCorrect: true}},
		1: {Status: model.QuestionStatusAnswered, FirstAnswer: &model.Answer{SelectedAnswers: []string{"b"}, IsCorrect: false}},
		2: {Status: model.QuestionStatusUnanswered},
	}}
	bridge := &fakeBridge{out: make(chan lifecycle.Trigger, 16)}
	pub := &fakePub{}
	sched := New(manager, states, bridge, pub, zerolog.Nop())
	return &fixture{sched: sched, manager: manager, store: store, states: states, bridge: bridge, pub: pub}
}

func TestTickUpdatesPendingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.sched.now = func() time.Time { return s.StartedAt.Add(30 * time.Second) }

	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerTick})

	cur := f.manager.Current("CIS-ITSM")
	if cur == nil {
		t.Fatal("session no longer pending after tick")
	}
	if cur.EndedAt != nil {
		t.Error("tick must never finalize")
	}
	if cur.QuestionsAnswered != 2 || cur.CorrectAnswers != 1 {
		t.Errorf("tick snapshot = %d/%d, want 2/1", cur.QuestionsAnswered, cur.CorrectAnswers)
	}
	if cur.TimeSpentMs != 30000 {
		t.Errorf("time spent = %dms, want 30000", cur.TimeSpentMs)
	}
	if len(f.pub.published) != 1 {
		t.Errorf("published %d snapshots, want 1", len(f.pub.published))
	}
}

func TestSuccessiveTicksTimeSpentMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Start(ctx, "CIS-ITSM", "ITSM")

	var prev int64
	for _, offset := range []time.Duration{10 * time.Second, 40 * time.Second, 70 * time.Second} {
		f.sched.now = func() time.Time { return s.StartedAt.Add(offset) }
		f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerTick})

		cur := f.manager.Current("CIS-ITSM")
		if cur.TimeSpentMs < prev {
			t.Errorf("time spent decreased: %d -> %d", prev, cur.TimeSpentMs)
		}
		prev = cur.TimeSpentMs
	}
}

func TestHiddenUpdatesWithoutFinalizing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerHidden, ExamCode: "CIS-ITSM"})

	cur := f.manager.Current("CIS-ITSM")
	if cur == nil {
		t.Fatal("hidden must not finalize the session")
	}
	if cur.QuestionsAnswered != 2 {
		t.Errorf("hidden did not apply an update: %+v", cur)
	}
}

func TestUnloadFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerUnload, ExamCode: "CIS-ITSM"})

	if f.manager.Current("CIS-ITSM") != nil {
		t.Error("session still pending after unload")
	}
	saved := f.store.saved[s.ID]
	if saved.EndedAt == nil {
		t.Fatal("unload did not set the end time")
	}
	if saved.QuestionsAnswered != 2 || saved.CorrectAnswers != 1 {
		t.Errorf("final snapshot = %d/%d, want 2/1", saved.QuestionsAnswered, saved.CorrectAnswers)
	}
}

func TestTriggerAfterUnloadIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerUnload, ExamCode: "CIS-ITSM"})
	final := f.store.saved[s.ID]

	// A queued tick and a second unload arrive after the finalize.
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerTick})
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerUnload, ExamCode: "CIS-ITSM"})

	got := f.store.saved[s.ID]
	if !got.EndedAt.Equal(*final.EndedAt) || got.QuestionsAnswered != final.QuestionsAnswered || got.TimeSpentMs != final.TimeSpentMs {
		t.Errorf("frozen record changed after unload: %+v vs %+v", got, final)
	}
}

func TestUnknownExamTriggersIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerHidden, ExamCode: "CAD"})
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerUnload, ExamCode: "CAD"})

	if len(f.store.saved) != 0 {
		t.Errorf("triggers for unknown exam wrote %d records", len(f.store.saved))
	}
}

func TestStateReadFailureSkipsUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.states.err = errors.New("redis down")

	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerTick})

	if cur := f.manager.Current("CIS-ITSM"); cur.QuestionsAnswered != 0 {
		t.Errorf("update applied despite unreadable state: %+v", cur)
	}
}

func TestUnloadWithUnreadableStateStillFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerTick}) // applies 2/1

	f.states.err = errors.New("redis down")
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerUnload, ExamCode: "CIS-ITSM"})

	saved := f.store.saved[s.ID]
	if saved.EndedAt == nil {
		t.Fatal("session not finalized when state was unreadable")
	}
	// Last applied snapshot is kept rather than dropped.
	if saved.QuestionsAnswered != 2 || saved.CorrectAnswers != 1 {
		t.Errorf("final snapshot = %d/%d, want last applied 2/1", saved.QuestionsAnswered, saved.CorrectAnswers)
	}
}

func TestTickerPausedWhenNothingPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerTick})
	if f.bridge.resumes == 0 {
		t.Error("ticker not running while a session is pending")
	}

	f.sched.handle(ctx, lifecycle.Trigger{Kind: lifecycle.TriggerUnload, ExamCode: "CIS-ITSM"})
	if f.bridge.pauses == 0 {
		t.Error("ticker not paused once no session is pending")
	}
}

func TestShutdownFinalizesAllPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.manager.Start(ctx, "CIS-ITSM", "ITSM")
	b, _ := f.manager.Start(ctx, "CAD", "App Developer")

	f.sched.Shutdown(ctx)

	if f.manager.PendingCount() != 0 {
		t.Errorf("%d sessions still pending after shutdown", f.manager.PendingCount())
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if f.store.saved[id].EndedAt == nil {
			t.Errorf("session %s not finalized by shutdown", id)
		}
	}
}
