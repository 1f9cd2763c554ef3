package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/middleware"
	"github.com/ciltra/ciltra-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	monitorWriteTimeout = 10 * time.Second
	monitorPingInterval = 30 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// MonitorHandler streams grading-queue events to connected examiners over
// WebSocket. Events arrive via Redis pub/sub so every server instance sees
// submissions handled by its peers.
type MonitorHandler struct {
	rdb            *redis.Client
	gradingService *service.GradingService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, gradingService *service.GradingService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		gradingService: gradingService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// GradingQueueStream godoc
// WS /ws/v1/examiner/grading/stream
// Upgrades to WebSocket and relays grading-queue events as they happen.
// The first frame is a snapshot of current queue counters.
func (h *MonitorHandler) GradingQueueStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int("examiner_id", claims.UserID).Logger()
	wsLog.Info().Msg("Examiner connected to grading stream")

	reqCtx := c.Request.Context()

	if stats, err := h.gradingService.Stats(reqCtx); err == nil {
		conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
		if err := conn.WriteJSON(gin.H{"type": "snapshot", "stats": stats}); err != nil {
			wsLog.Debug().Err(err).Msg("Snapshot write failed")
			return
		}
	}

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.GradingEventsChannel())
	defer pubsub.Close()
	ch := pubsub.Channel()

	// Reader pump: the examiner never sends payloads, but reading is how
	// close frames surface.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(monitorPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-reqCtx.Done():
			wsLog.Info().Msg("Examiner disconnected from grading stream")
			return

		case <-closed:
			wsLog.Debug().Msg("Connection closed")
			return

		case msg := <-ch:
			// Forward raw JSON directly — no deserialization needed
			conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				wsLog.Warn().Err(err).Msg("Event write failed")
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				wsLog.Debug().Msg("Ping failed, closing")
				return
			}
		}
	}
}
