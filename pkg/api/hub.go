package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// streamMessage is the envelope pushed down every /stream/summary
// connection, in the register of the teacher's WebSocketMessage.
type streamMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

const (
	msgTypeSummary   = "summary"
	msgTypeHeartbeat = "heartbeat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan streamMessage
}

// hub fans out published summaries to every connected client, grounded on
// the teacher's WebSocketHub register/unregister/broadcast channel pattern
// (pkg/api/websocket.go), substituting zerolog for its log/slog logger.
type hub struct {
	log zerolog.Logger

	disabled bool

	register   chan *client
	unregister chan *client
	broadcastC chan streamMessage

	mu      sync.RWMutex
	clients map[*client]bool
}

func newHub(log zerolog.Logger) *hub {
	return &hub{
		log:        log.With().Str("component", "api.hub").Logger(),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcastC: make(chan streamMessage, 64),
		clients:    make(map[*client]bool),
	}
}

// run drives the hub's event loop until ctx is cancelled, sending a
// periodic heartbeat so idle clients can detect a dead connection.
func (h *hub) run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcastC:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow consumer, drop rather than block the hub
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.broadcastC <- streamMessage{Type: msgTypeHeartbeat, Timestamp: h.now()}
		}
	}
}

// now exists only so the ticker path above doesn't call time.Now() inline
// in more than one place; not a substitute for a mockable clock.
func (h *hub) now() time.Time { return time.Now() }

// broadcast enqueues payload for delivery to every connected client. Safe
// to call from any goroutine; never blocks.
func (h *hub) broadcast(payload interface{}) {
	if h.disabled {
		return
	}
	select {
	case h.broadcastC <- streamMessage{Type: msgTypeSummary, Timestamp: h.now(), Data: payload}:
	default:
		h.log.Warn().Msg("broadcast channel full, dropping update")
	}
}

// handleStreamSummary upgrades the connection and registers it with the
// hub; the connection is torn down once writePump returns.
func (s *Server) handleStreamSummary(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	cl := &client{conn: conn, send: make(chan streamMessage, 16)}
	s.hub.register <- cl
	cl.writePump(s.hub)
}

func (cl *client) writePump(h *hub) {
	defer cl.conn.Close()
	for msg := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := cl.conn.WriteJSON(msg); err != nil {
			h.unregister <- cl
			return
		}
	}
}
