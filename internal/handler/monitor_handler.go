package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepforge/studytrack/internal/config"
	"github.com/prepforge/studytrack/internal/session"
)

const monitorPingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty origin list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live session snapshot updates to observers over
// WebSocket, fed by the Redis PubSub channel the scheduler publishes on.
type MonitorHandler struct {
	rdb      *redis.Client
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		manager:  manager,
		log:      log.With().Str("component", "monitor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/exams/:exam_code/monitor
// Sends the current pending session immediately, then every snapshot the
// scheduler persists. Read-only; client messages are ignored.
func (h *MonitorHandler) Stream(c *gin.Context) {
	examCode := c.Param("exam_code")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	reqCtx := c.Request.Context()

	// Initial state so the observer does not wait a full interval.
	if cur := h.manager.Current(examCode); cur != nil {
		if err := conn.WriteJSON(cur); err != nil {
			return
		}
	}

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.MonitorChannel(examCode))
	defer pubsub.Close()
	ch := pubsub.Channel()

	// Reader goroutine only detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(monitorPingInterval)
	defer ping.Stop()

	h.log.Info().Str("exam_code", examCode).Msg("Monitor attached")

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-done:
			h.log.Debug().Str("exam_code", examCode).Msg("Monitor disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
