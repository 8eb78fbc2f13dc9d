package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuestionStatesKey returns the Redis hash key holding the live per-question
// answer state for an exam. Fields are question indexes, values are JSON
// QuestionState records.
func (r *CacheKeyStruct) QuestionStatesKey(examCode string) string {
	return fmt.Sprintf("study:exam:%s:question_states", examCode)
}

// MonitorChannel returns the Redis PubSub channel on which session snapshot
// updates for an exam are published.
func (r *CacheKeyStruct) MonitorChannel(examCode string) string {
	return fmt.Sprintf("study:exam:%s:monitor", examCode)
}

var CacheKey = NewCacheKeyStruct()
