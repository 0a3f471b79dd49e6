package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coursekart/exam-engine/internal/middleware"
	"github.com/coursekart/exam-engine/internal/service"
	ws "github.com/coursekart/exam-engine/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// clockPushInterval is how often the authoritative clock is pushed to the
// client between reconnects.
const clockPushInterval = 5 * time.Second

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

// WSHandler streams the server-authoritative attempt clock over WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ClockStream godoc
// WS /ws/v1/attempts/:attempt_id/clock
// Pushes the remaining time of the active subject every few seconds, sends a
// final done event when the attempt leaves the in-progress state, then closes.
func (h *WSHandler) ClockStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Clock stream connected")

	// The stream is push-only; the read pump exists to notice the client
	// hanging up.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()

	if done := h.pushClock(ctx, conn, wsLog, attemptID, claims.UserID); done {
		return
	}

	ticker := time.NewTicker(clockPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			wsLog.Debug().Msg("Clock stream closed by client")
			return
		case <-ticker.C:
			if done := h.pushClock(ctx, conn, wsLog, attemptID, claims.UserID); done {
				return
			}
		}
	}
}

// pushClock sends one clock frame. Returns true when the stream should end:
// either the attempt is no longer in progress or the connection is broken.
func (h *WSHandler) pushClock(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, userID int) bool {
	out, err := h.attemptService.SyncTime(ctx, attemptID, userID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Clock sync failed")
		ws.WriteError(conn, "clock sync failed")
		return true
	}

	if out.Status.Terminal() {
		ws.WriteTyped(conn, ws.DoneResponse{
			Event:  ws.EventDone,
			Status: string(out.Status),
		})
		wsLog.Info().Str("status", string(out.Status)).Msg("Clock stream finished")
		return true
	}

	if err := ws.WriteTyped(conn, ws.ClockResponse{
		Event:                ws.EventClock,
		TimeRemainingSeconds: out.TimeRemainingSeconds,
		Status:               string(out.Status),
		CurrentSubjectIndex:  out.CurrentSubjectIndex,
	}); err != nil {
		wsLog.Debug().Err(err).Msg("Clock push failed")
		return true
	}
	return false
}
