package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/tgsearch/internal/bridge"
	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var errSendBufferFull = errors.New("websocket send buffer full")

// wsClient is one websocket connection and the bridge serving it.
type wsClient struct {
	conn   *websocket.Conn
	bridge *bridge.Bridge
	send   chan *bus.Envelope
	done   chan struct{}
}

// handleWebSocket runs one bridge for the lifetime of the connection.
// Client frames are {"type","data"} commands; events the client registered
// for are written back in the same form.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	b, err := bridge.New(ctx, s.deps, s.sessions, s.queue, s.logger)
	if err != nil {
		s.logger.Error("create bridge failed", "error", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		conn.Close()
		return
	}
	defer b.Close()

	c := &wsClient{
		conn:   conn,
		bridge: b,
		send:   make(chan *bus.Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
	removeTap := b.Client().Tap(c.deliver)
	defer removeTap()

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()
	s.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	defer close(c.done)

	// server:connected is buffered in send until the write pump starts.
	if err := b.Mount(ctx); err != nil {
		s.logger.Error("mount bridge failed", "error", err)
		c.closeWith(websocket.CloseInternalServerErr, "database unavailable")
		return
	}

	go c.writePump()
	c.readPump(ctx)
	s.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
}

// deliver queues a client-bus event for writing. A client too slow to
// drain its buffer loses the event rather than stalling the bus.
func (c *wsClient) deliver(ev bus.Event) error {
	env, err := bus.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env bus.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.bridge.SendRaw(ctx, env.Type, env.Data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) closeWith(code int, reason string) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.conn.Close()
}
