// Package websocket is the live-push channel: each upgraded connection is
// registered with the notify.Registry under its authenticated user and
// receives notification and queue_updated events as JSON frames.
package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iliyamo/queueease/internal/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Client pumps events between one websocket connection and the registry.
type Client struct {
	id     string
	userID uint64
	conn   *websocket.Conn
	log    zerolog.Logger

	mu     sync.Mutex
	send   chan notify.Event
	closed bool
}

func NewClient(userID uint64, conn *websocket.Conn, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		log:    log.With().Str("conn_id", id).Uint64("user_id", userID).Logger(),
		send:   make(chan notify.Event, sendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues ev for the write pump.  It never blocks: a full buffer or a
// closed client returns false.
func (c *Client) Send(ev notify.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Run starts the write pump and blocks in the read pump until the peer
// goes away.  unregister is called before Run returns.
func (c *Client) Run(unregister func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	unregister()
	c.Close()
	<-done
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg notify.Event
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("unexpected close")
			}
			return
		}
		if msg.Type == notify.EventPing {
			c.Send(notify.Event{Type: notify.EventPong})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("write event")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
