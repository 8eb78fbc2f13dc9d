package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/model"
)

// fakeStore keeps saved sessions in memory and can be made to fail writes.
type fakeStore struct {
	saved   map[uuid.UUID]model.StudySession
	pending []model.StudySession
	failing bool
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[uuid.UUID]model.StudySession)}
}

func (f *fakeStore) Save(_ context.Context, s *model.StudySession) error {
	f.saves++
	if f.failing {
		return errors.New("disk full")
	}
	f.saved[s.ID] = *s.Clone()
	return nil
}

func (f *fakeStore) ListPending(_ context.Context) ([]model.StudySession, error) {
	out := make([]model.StudySession, len(f.pending))
	copy(out, f.pending)
	return out, nil
}

func newManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewManager(store, zerolog.Nop()), store
}

func snapshot(answered, correct int, timeSpentMs int64) model.Snapshot {
	return model.Snapshot{
		QuestionsAnswered:    answered,
		CorrectAnswers:       correct,
		Accuracy:             100 * float64(correct) / float64(answered),
		TimeSpentMs:          timeSpentMs,
		CompletionPercentage: 50,
		DifficultyBreakdown: map[string]model.DifficultyBucket{
			"unrated": {Answered: answered, Correct: correct, Total: answered * 2},
		},
	}
}

func TestStartAndCurrent(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "CIS-ITSM", "ITSM Implementation Specialist")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Pending() {
		t.Error("new session should be pending")
	}

	cur := m.Current("CIS-ITSM")
	if cur == nil || cur.ID != s.ID {
		t.Fatalf("Current = %+v, want session %s", cur, s.ID)
	}
	if m.Current("CAD") != nil {
		t.Error("Current for unknown exam should be nil")
	}
	if _, ok := store.saved[s.ID]; !ok {
		t.Error("new session was not persisted")
	}
}

func TestStartConflict(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, "CIS-ITSM", "ITSM"); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	_, err := m.Start(ctx, "CIS-ITSM", "ITSM")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Start error = %v, want ConflictError", err)
	}
	if conflict.ExamCode != "CIS-ITSM" {
		t.Errorf("conflict exam code = %q", conflict.ExamCode)
	}

	// A different exam code is unaffected.
	if _, err := m.Start(ctx, "CAD", "App Developer"); err != nil {
		t.Errorf("Start for other exam: %v", err)
	}
}

func TestUpdateAppliesOnlyWhilePending(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	s, _ := m.Start(ctx, "CIS-ITSM", "ITSM")

	m.Update(ctx, s.ID, snapshot(2, 1, 30000))

	cur := m.Current("CIS-ITSM")
	if cur.QuestionsAnswered != 2 || cur.CorrectAnswers != 1 || cur.TimeSpentMs != 30000 {
		t.Errorf("update not applied: %+v", cur)
	}
	if cur.EndedAt != nil {
		t.Error("update must never set the end time")
	}
	if store.saved[s.ID].TimeSpentMs != 30000 {
		t.Error("update was not persisted")
	}
}

func TestUpdateUnknownIDIsNoop(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	m.Start(ctx, "CIS-ITSM", "ITSM")
	before := store.saves

	m.Update(ctx, uuid.New(), snapshot(9, 9, 1))

	if store.saves != before {
		t.Error("update with unknown id must not write")
	}
	if cur := m.Current("CIS-ITSM"); cur.QuestionsAnswered != 0 {
		t.Errorf("unrelated session mutated: %+v", cur)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	s, _ := m.Start(ctx, "CIS-ITSM", "ITSM")
	m.End(ctx, s.ID, snapshot(3, 2, 60000))

	first := store.saved[s.ID]
	if first.EndedAt == nil {
		t.Fatal("End did not set the end time")
	}
	if m.Current("CIS-ITSM") != nil {
		t.Error("finalized session still reported as current")
	}

	// Second finalize must change nothing.
	m.End(ctx, s.ID, snapshot(99, 99, 999999))
	second := store.saved[s.ID]
	if !second.EndedAt.Equal(*first.EndedAt) || second.QuestionsAnswered != first.QuestionsAnswered {
		t.Errorf("second End mutated the record: %+v vs %+v", second, first)
	}
}

func TestUpdateAfterEndIsNoop(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	s, _ := m.Start(ctx, "CIS-ITSM", "ITSM")
	m.End(ctx, s.ID, snapshot(3, 2, 60000))
	final := store.saved[s.ID]

	m.Update(ctx, s.ID, snapshot(50, 50, 999999))

	got := store.saved[s.ID]
	if got.QuestionsAnswered != final.QuestionsAnswered || !got.EndedAt.Equal(*final.EndedAt) {
		t.Errorf("update after End mutated frozen record: %+v", got)
	}

	// Starting fresh for the same exam is now allowed again.
	if _, err := m.Start(ctx, "CIS-ITSM", "ITSM"); err != nil {
		t.Errorf("Start after End: %v", err)
	}
}

func TestWriteFailureIsNotFatal(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	s, _ := m.Start(ctx, "CIS-ITSM", "ITSM")

	store.failing = true
	m.Update(ctx, s.ID, snapshot(2, 1, 30000))

	// In-memory record stays authoritative.
	if cur := m.Current("CIS-ITSM"); cur.QuestionsAnswered != 2 {
		t.Errorf("in-memory record lost the update: %+v", cur)
	}

	// Next tick retries and succeeds.
	store.failing = false
	m.Update(ctx, s.ID, snapshot(3, 2, 60000))
	if store.saved[s.ID].QuestionsAnswered != 3 {
		t.Error("retry write did not land")
	}
}

func TestRecoverPending(t *testing.T) {
	store := newFakeStore()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	updated := started.Add(5 * time.Minute)
	store.pending = []model.StudySession{
		{
			ID:                uuid.New(),
			ExamCode:          "CIS-ITSM",
			ExamName:          "ITSM",
			StartedAt:         started,
			UpdatedAt:         updated,
			QuestionsAnswered: 5,
			CorrectAnswers:    4,
			TimeSpentMs:       300000,
		},
	}

	m := NewManager(store, zerolog.Nop())
	if err := m.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}

	got := store.saved[store.pending[0].ID]
	if got.EndedAt == nil || !got.EndedAt.Equal(updated) {
		t.Errorf("recovery end time = %v, want last snapshot time %v", got.EndedAt, updated)
	}
	if got.QuestionsAnswered != 5 || got.CorrectAnswers != 4 {
		t.Errorf("recovery changed snapshot values: %+v", got)
	}
	if m.Current("CIS-ITSM") != nil {
		t.Error("recovered session must not be pending")
	}

	// Second run sees nothing pending and is a no-op.
	store.pending = nil
	if err := m.RecoverPending(context.Background()); err != nil {
		t.Fatalf("second RecoverPending: %v", err)
	}
}

func TestRecoverPendingClampsCorruptSnapshots(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.pending = []model.StudySession{
		{
			ID:                   id,
			ExamCode:             "CAD",
			StartedAt:            started,
			UpdatedAt:            started.Add(time.Minute),
			QuestionsAnswered:    3,
			CorrectAnswers:       7, // corrupt: correct > answered
			TimeSpentMs:          -50,
			CompletionPercentage: 140,
			DifficultyBreakdown: map[string]model.DifficultyBucket{
				"easy": {Answered: 5, Correct: 6, Total: 2},
			},
		},
	}

	m := NewManager(store, zerolog.Nop())
	if err := m.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}

	got := store.saved[id]
	if got.CorrectAnswers > got.QuestionsAnswered {
		t.Errorf("correct %d > answered %d after clamp", got.CorrectAnswers, got.QuestionsAnswered)
	}
	if got.TimeSpentMs != 0 {
		t.Errorf("negative time spent survived clamp: %d", got.TimeSpentMs)
	}
	if got.CompletionPercentage != 100 {
		t.Errorf("completion = %v, want clamped 100", got.CompletionPercentage)
	}
	b := got.DifficultyBreakdown["easy"]
	if b.Answered > b.Total || b.Correct > b.Answered {
		t.Errorf("bucket invariants violated after clamp: %+v", b)
	}
}
