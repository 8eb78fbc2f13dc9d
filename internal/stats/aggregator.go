// Package stats derives aggregate study statistics from a snapshot of
// per-question answer state. All functions are pure: they read the states
// passed in and hold no state of their own, so every lifecycle trigger can
// recompute from the live source of truth without caching hazards.
package stats

import (
	"time"

	"github.com/prepforge/studytrack/internal/model"
)

// ComputeProgress tallies answered and correct counts over all tracked
// questions. A question counts as answered only if its first recorded answer
// exists, and as correct only if that first answer was correct. Re-answering
// for review never changes these numbers.
func ComputeProgress(states map[int]model.QuestionState) model.Progress {
	p := model.Progress{Total: len(states)}
	for _, st := range states {
		if st.FirstAnswer == nil {
			continue
		}
		p.Answered++
		if st.FirstAnswer.IsCorrect {
			p.Correct++
		}
	}
	return p
}

// ComputeDifficultyBreakdown groups question states by difficulty label.
// States without a label fall into the reserved "unrated" bucket. Every
// state contributes to exactly one bucket, so bucket totals sum to the
// overall question count.
func ComputeDifficultyBreakdown(states map[int]model.QuestionState) map[string]model.DifficultyBucket {
	breakdown := make(map[string]model.DifficultyBucket)
	for _, st := range states {
		label := st.Difficulty
		if label == "" {
			label = model.UnratedDifficulty
		}
		bucket := breakdown[label]
		bucket.Total++
		if st.FirstAnswer != nil {
			bucket.Answered++
			if st.FirstAnswer.IsCorrect {
				bucket.Correct++
			}
		}
		breakdown[label] = bucket
	}
	return breakdown
}

// ComputeCompletionPercentage converts progress into a 0–100 completion
// figure. An exam with no tracked questions is 0% complete, not NaN.
func ComputeCompletionPercentage(p model.Progress) float64 {
	if p.Total == 0 {
		return 0
	}
	return 100 * float64(p.Answered) / float64(p.Total)
}

// ComputeAccuracy is the share of answered questions whose first answer was
// correct, as a 0–100 percentage. No answers means 0.
func ComputeAccuracy(p model.Progress) float64 {
	if p.Answered == 0 {
		return 0
	}
	return 100 * float64(p.Correct) / float64(p.Answered)
}

// ComputeTimeSpent returns now minus start, clamped to zero so clock
// adjustments or out-of-order event delivery never surface a negative
// duration.
func ComputeTimeSpent(start, now time.Time) time.Duration {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// BuildSnapshot composes the individual aggregations into the snapshot a
// session update or finalize carries.
func BuildSnapshot(states map[int]model.QuestionState, start, now time.Time) model.Snapshot {
	progress := ComputeProgress(states)
	return model.Snapshot{
		QuestionsAnswered:    progress.Answered,
		CorrectAnswers:       progress.Correct,
		Accuracy:             ComputeAccuracy(progress),
		TimeSpentMs:          ComputeTimeSpent(start, now).Milliseconds(),
		CompletionPercentage: ComputeCompletionPercentage(progress),
		DifficultyBreakdown:  ComputeDifficultyBreakdown(states),
	}
}
