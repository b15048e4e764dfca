// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// PingPeriod is how often an idle connection is pinged. Each pong counts as
// participant activity, so a staleness threshold must be longer than this.
const PingPeriod = (pongWait * 9) / 10

// NewUpgrader accepts browser origins listed in allowed. An empty list
// accepts any origin.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
}

type role int

const (
	roleNone role = iota
	roleParticipant
	roleHost
)

type outbound struct {
	data []byte
	last bool // close the socket after writing
}

// Client is one websocket connection. Its ID is the connection reference the
// store binds to a participant or to the host role.
type Client struct {
	id     string
	code   string
	conn   *websocket.Conn
	engine *engine.Engine

	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once

	// Only the read loop touches these
	role     role
	nickname string
	hostKey  string
}

// Serve runs the connection for room code until the socket closes. It blocks,
// so call it from the HTTP handler goroutine after upgrading.
func Serve(e *engine.Engine, conn *websocket.Conn, code string) {
	c := &Client{
		id:     auth.NewConnID(),
		code:   code,
		conn:   conn,
		engine: e,
		send:   make(chan outbound, sendBuffer),
		done:   make(chan struct{}),
	}

	slog.Debug("websocket connected", "room", code, "conn", c.id)
	go c.writePump()
	c.readPump()
}

func (c *Client) ID() string { return c.id }

// Deliver queues a broadcast event. A client that cannot keep up is
// disconnected; it resynchronizes from a snapshot when it reconnects.
func (c *Client) Deliver(ev models.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode event", "type", ev.Type, "error", err)
		return false
	}
	return c.enqueue(outbound{data: data, last: ev.Type == models.EventRoomClosed})
}

func (c *Client) enqueue(msg outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		slog.Warn("websocket send buffer full, disconnecting", "room", c.code, "conn", c.id)
		c.close()
		return false
	}
}

func (c *Client) reply(msg models.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to encode reply", "type", msg.Type, "error", err)
		return
	}
	c.enqueue(outbound{data: data})
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump handles client messages until the socket fails, then reports the
// disconnect
func (c *Client) readPump() {
	defer func() {
		if err := c.engine.Disconnect(context.Background(), c.id); err != nil {
			slog.Warn("disconnect failed", "room", c.code, "conn", c.id, "error", err)
		}
		c.close()
		c.conn.Close()
		slog.Debug("websocket disconnected", "room", c.code, "conn", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("websocket read error", "room", c.code, "conn", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError("invalid_input", "message is not valid JSON")
			continue
		}
		c.touch()
		c.handle(msg)

		select {
		case <-c.done:
			return
		default:
		}
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.close()
				return
			}
			if msg.last {
				c.close()
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) touch() {
	if c.role != roleParticipant {
		return
	}
	if err := c.engine.Touch(context.Background(), c.id); err != nil {
		slog.Debug("touch failed", "conn", c.id, "error", err)
	}
}
