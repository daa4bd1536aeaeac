package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsTransport wraps a gorilla connection behind the hub's Transport
// interface. Writes are serialized and carry a short deadline so one
// stalled peer cannot hold up a broadcast pass.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) CloseWith(code int, reason string) error {
	t.mu.Lock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	t.mu.Unlock()
	return t.conn.Close()
}

// ServeWS upgrades the request and runs the connection's read loop until
// the client goes away. Route: GET /ws/{roomID}?display_name=...
func ServeWS(hub *Hub, log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "room id required", http.StatusBadRequest)
		return
	}
	displayName := r.URL.Query().Get("display_name")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", "err", err)
		return
	}

	transport := newTransport(conn)
	userID, err := hub.Connect(transport, roomID, displayName)
	if err != nil {
		// Connect already closed the transport with the reject reason.
		return
	}

	readLoop(hub, log, transport, conn, roomID, userID)
}

// readLoop processes inbound frames strictly in arrival order and owns the
// cleanup path. Whatever ends the loop, the connection is deregistered
// exactly once.
func readLoop(hub *Hub, log *slog.Logger, transport *wsTransport, conn *websocket.Conn, roomID, userID string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("connection handler panic", "room", roomID, "user", userID, "panic", rec)
		}
		hub.Disconnect(roomID, userID)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("ws read error", "room", roomID, "user", userID, "err", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Malformed frames get a personal error reply; the
			// connection stays usable.
			_ = transport.Send(errorFrame("Invalid JSON format"))
			continue
		}

		if err := hub.Dispatch(roomID, userID, env); err != nil {
			_ = transport.Send(errorFrame("Error processing message: " + err.Error()))
		}
	}
}
