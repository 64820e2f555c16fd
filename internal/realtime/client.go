package realtime

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/services/auth"
)

// Client is one live websocket connection. Fields other than send are
// owned by the hub's Run goroutine once registered.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	id        model.ConnectionID
	sessionID string
	userID    model.UserID
	nickname  string
	start     model.Position
	send      chan []byte

	// seq numbers user_moved events from this connection
	seq uint64

	connectedAt time.Time
	closeCode   int
	closeReason string
}

func (h *Hub) newClient(conn *websocket.Conn, session *auth.Session, start model.Position) *Client {
	return &Client{
		hub:         h,
		conn:        conn,
		id:          model.ConnectionID(uuid.NewString()),
		sessionID:   session.ID,
		userID:      session.UserID,
		nickname:    session.User.Nickname,
		start:       start,
		send:        make(chan []byte, h.cfg.SendBuffer),
		connectedAt: h.deps.Clock.Now(),
		closeCode:   websocket.CloseNormalClosure,
	}
}

// ID returns the connection id
func (c *Client) ID() model.ConnectionID {
	return c.id
}

// closeWith sets the close frame sent once the send buffer drains.
// Must be called before send is closed.
func (c *Client) closeWith(code int, reason string) {
	c.closeCode = code
	c.closeReason = reason
}

// readPump decodes inbound frames and hands them to the hub
func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	pongWait := c.hub.cfg.PongWait
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug("websocket closed unexpectedly",
					slog.String("connection_id", string(c.id)),
					slog.Any("error", err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !c.hub.receive(c, data) {
			return
		}
	}
}

// writePump drains the send buffer onto the socket and keeps it alive with pings.
// When the hub closes send, it writes the close frame and hangs up.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
