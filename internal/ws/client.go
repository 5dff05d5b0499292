package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nufaill/fluffyCare-sub004/internal/logger"
)

// Client is one server-side socket connection. Only its write pump writes to conn.
type Client struct {
	conn      *websocket.Conn
	info      ConnInfo
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	typing    *rate.Limiter
}

func newClient(conn *websocket.Conn, info ConnInfo, cfg Config) *Client {
	return &Client{
		conn:   conn,
		info:   info,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		typing: rate.NewLimiter(rate.Limit(cfg.TypingRatePerSec), cfg.TypingBurst),
	}
}

// ID is the connection id announced to the client in the connected event.
func (c *Client) ID() string {
	return c.info.ConnID
}

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo {
	return c.info
}

// enqueue queues payload without blocking. A client whose queue is full is
// disconnected rather than allowed to stall broadcasts.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		logger.Warn("send queue full conn_id=%s party=%s, dropping connection", c.info.ConnID, c.info.PartyID)
		c.closeWith(websocket.ClosePolicyViolation, "send queue full")
		return false
	}
}

func (c *Client) emit(event string, data interface{}) bool {
	payload, err := encodeEvent(event, data)
	if err != nil {
		logger.Error("encode %s event: %v", event, err)
		return false
	}
	return c.enqueue(payload)
}

// close drops the connection without a close frame, for peers that are
// already gone.
func (c *Client) close() {
	c.shutdown(nil)
}

// closeWith tells the peer why the server is ending the connection before
// dropping it. WriteControl may run alongside the write pump.
func (c *Client) closeWith(code int, reason string) {
	c.shutdown(websocket.FormatCloseMessage(code, reason))
}

func (c *Client) shutdown(frame []byte) {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		if frame != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
		}
		_ = c.conn.Close()
	})
}

func (c *Client) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("write error conn_id=%s: %v", c.info.ConnID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("ping error conn_id=%s: %v", c.info.ConnID, err)
				return
			}
		}
	}
}
