package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/prepforge/studytrack/internal/config"
	"github.com/prepforge/studytrack/internal/model"
)

// MonitorPublisher broadcasts session snapshot updates over Redis PubSub so
// the WebSocket monitor can stream them to observers.
type MonitorPublisher struct {
	rdb *redis.Client
}

// NewMonitorPublisher creates a new MonitorPublisher.
func NewMonitorPublisher(rdb *redis.Client) *MonitorPublisher {
	return &MonitorPublisher{rdb: rdb}
}

// PublishSession publishes the session record on the exam's monitor channel.
func (p *MonitorPublisher) PublishSession(ctx context.Context, s *model.StudySession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.MonitorChannel(s.ExamCode), raw).Err(); err != nil {
		return fmt.Errorf("publish session: %w", err)
	}
	return nil
}
