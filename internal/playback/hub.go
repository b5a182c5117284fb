package playback

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 64
)

// Hub owns one RemotePlayer per stream index and serves the websocket
// endpoint browser pages connect to.
type Hub struct {
	log      *slog.Logger
	players  []*RemotePlayer
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*connection]struct{}
	onChange func(connected int)
}

// NewHub returns a hub serving n streams. onChange, if non-nil, is called
// with the number of connected streams whenever a connection opens or closes.
func NewHub(n int, log *slog.Logger, onChange func(connected int)) *Hub {
	h := &Hub{
		log:     log,
		players: make([]*RemotePlayer, n),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:    make(map[*connection]struct{}),
		onChange: onChange,
	}
	for i := range h.players {
		h.players[i] = newRemotePlayer(i, log)
	}
	return h
}

// Player returns the player for stream i, or nil when i is out of range.
func (h *Hub) Player(i int) *RemotePlayer {
	if i < 0 || i >= len(h.players) {
		return nil
	}
	return h.players[i]
}

// Players returns every player in index order.
func (h *Hub) Players() []*RemotePlayer {
	out := make([]*RemotePlayer, len(h.players))
	copy(out, h.players)
	return out
}

// Connected returns how many streams currently have a browser connected.
func (h *Hub) Connected() int {
	n := 0
	for _, p := range h.players {
		if p.Connected() {
			n++
		}
	}
	return n
}

// ServeStream handles GET /ws/streams/{index}: it upgrades the request and
// binds the connection to the stream's player, replacing any older one.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p := h.Player(idx)
	if p == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.log.Debug("websocket upgrade failed", slog.Int("stream", idx), slog.String("error", err.Error()))
		return
	}

	c := newConnection(uuid.NewString(), ws, p, h.log)
	h.register(c)
	if old := p.attach(c); old != nil {
		old.close()
	}
	h.log.Info("player connected", slog.Int("stream", idx), slog.String("session_id", c.id))
	h.notify()

	go c.writePump()
	go func() {
		c.readPump()
		if p.detach(c) {
			h.log.Info("player disconnected", slog.Int("stream", idx), slog.String("session_id", c.id))
		}
		h.unregister(c)
		h.notify()
	}()
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) notify() {
	if h.onChange != nil {
		h.onChange(h.Connected())
	}
}

// connection is one browser websocket bound to a player.
type connection struct {
	id     string
	ws     *websocket.Conn
	player *RemotePlayer
	log    *slog.Logger

	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(id string, ws *websocket.Conn, p *RemotePlayer, log *slog.Logger) *connection {
	return &connection{
		id:     id,
		ws:     ws,
		player: p,
		log:    log.With(slog.Int("stream", p.index), slog.String("session_id", id)),
		send:   make(chan Message, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue queues msg without blocking.
func (c *connection) enqueue(msg Message) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrQueueFull
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump decodes browser events until the connection fails.
func (c *connection) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("player connection closed", slog.String("error", err.Error()))
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Debug("invalid player event", slog.String("error", err.Error()))
			continue
		}
		c.player.handleEvent(ev)
	}
}

// writePump drains the outbound queue and keeps the connection alive.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Debug("write to player failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
