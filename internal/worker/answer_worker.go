package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/config"
	"github.com/prepforge/studytrack/internal/model"
)

// AnswerWorker consumes the answer persistence queue and UPSERTs answer
// history into PostgreSQL. The first recorded answer columns are written
// once and never overwritten, matching the first-answer statistics rule.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var event model.AnswerEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistAnswer(ctx, &event); err != nil {
		w.log.Error().Err(err).
			Str("exam_code", event.ExamCode).
			Int("question_index", event.QuestionIndex).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AnswerWorker) persistAnswer(ctx context.Context, e *model.AnswerEvent) error {
	selected, err := json.Marshal(e.SelectedAnswers)
	if err != nil {
		return err
	}

	// UPSERT: first_* columns are set on insert only, so re-answering a
	// question updates the latest answer without rewriting history.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO question_answers
		   (exam_code, question_index, first_selected, first_correct, first_answered_at,
		    latest_selected, latest_correct, latest_answered_at, status, difficulty, favorite)
		 VALUES ($1, $2, $3, $4, $5, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (exam_code, question_index) DO UPDATE
		 SET latest_selected = EXCLUDED.latest_selected,
		     latest_correct = EXCLUDED.latest_correct,
		     latest_answered_at = EXCLUDED.latest_answered_at,
		     status = EXCLUDED.status,
		     difficulty = EXCLUDED.difficulty,
		     favorite = EXCLUDED.favorite`,
		e.ExamCode, e.QuestionIndex, selected, e.IsCorrect, e.AnsweredAt,
		e.Status, e.Difficulty, e.Favorite,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var event model.AnswerEvent
		if err := json.Unmarshal([]byte(result), &event); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistAnswer(ctx, &event); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
