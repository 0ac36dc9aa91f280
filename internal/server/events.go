// ABOUTME: WebSocket event stream pushing bus events to connected claws
// ABOUTME: Each connection sees its own events plus unaddressed broadcasts

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/bus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Signature auth already ran; origin checks add nothing for non-browser
	// clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wireEvent struct {
	Name      string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// handleEvents upgrades to a WebSocket and streams bus events addressed to
// the caller. The subscription dies with the connection; missed events are
// recovered through the inbox catch-up API, not replayed here.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	clawID := auth.MustFromContext(r.Context()).ClawID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "claw_id", clawID, "error", err)
		return
	}
	defer conn.Close()

	wsConnections.Inc()
	defer wsConnections.Dec()

	ctx := r.Context()
	events, subID := s.bus.Subscribe(ctx)
	s.logger.Debug("event stream opened", "claw_id", clawID, "subscription", subID)

	// Reader goroutine drains client frames so pongs and closes are seen.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !eventVisibleTo(ev, clawID) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wireEvent{Name: ev.Name, Payload: ev.Payload, Timestamp: ev.Timestamp}); err != nil {
				s.logger.Debug("event stream write failed", "claw_id", clawID, "error", err)
				return
			}
		}
	}
}

// eventVisibleTo reports whether an event should reach a given subscriber.
// Events addressed to a claw are private; events with no address broadcast.
func eventVisibleTo(ev bus.Event, clawID string) bool {
	return ev.ClawID == "" || ev.ClawID == clawID
}
