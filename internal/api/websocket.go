package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"supertrend-core/internal/events"
	"supertrend-core/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteWait = 5 * time.Second

// websocket streams bus events as {type, payload} frames, starting with the
// current status.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteJSON(gin.H{"detail": "bus not ready"})
		return
	}

	stream, unsub := s.Bus.SubscribeAll(100)
	defer unsub()

	// The read side only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(env events.Envelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(env); err != nil {
			logger.Debugf("ws write error: %v", err)
			return false
		}
		return true
	}

	if !write(events.Envelope{Type: events.EventStatusChange, Payload: s.Engine.Status()}) {
		return
	}
	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case env, ok := <-stream:
			if !ok || !write(env) {
				return
			}
		}
	}
}
