package model

import "time"

// QuestionStatus enumerates per-question answer states as tracked by the UI.
type QuestionStatus string

const (
	QuestionStatusUnanswered QuestionStatus = "unanswered"
	QuestionStatusAnswered   QuestionStatus = "answered"
	QuestionStatusReview     QuestionStatus = "review"
)

// Answer is one recorded answer to a question.
type Answer struct {
	SelectedAnswers []string  `json:"selected_answers"`
	IsCorrect       bool      `json:"is_correct"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// QuestionState is the live per-question record held in the question state
// store. FirstAnswer is written once and never overwritten; statistics are
// derived from it so re-answering for review does not rewrite history.
type QuestionState struct {
	Status       QuestionStatus `json:"status"`
	FirstAnswer  *Answer        `json:"first_answer,omitempty"`
	LatestAnswer *Answer        `json:"latest_answer,omitempty"`
	Difficulty   string         `json:"difficulty,omitempty"`
	Favorite     bool           `json:"favorite"`
}

// AnswerEvent is the queue payload for asynchronously persisting a recorded
// answer to durable storage.
type AnswerEvent struct {
	ExamCode        string    `json:"exam_code"`
	QuestionIndex   int       `json:"question_index"`
	SelectedAnswers []string  `json:"selected_answers"`
	IsCorrect       bool      `json:"is_correct"`
	First           bool      `json:"first"`
	Status          string    `json:"status"`
	Difficulty      string    `json:"difficulty"`
	Favorite        bool      `json:"favorite"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// SubmitAnswerRequest is the payload for recording an answer to a question.
type SubmitAnswerRequest struct {
	QuestionIndex   int      `json:"question_index" binding:"min=0"`
	SelectedAnswers []string `json:"selected_answers" binding:"required,min=1"`
	IsCorrect       bool     `json:"is_correct"`
	Difficulty      string   `json:"difficulty" binding:"omitempty,max=32"`
	Favorite        bool     `json:"favorite"`
}
