package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"QChat/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one live device channel for a user. Owned by the Registry; nobody
// else holds a reference past the end of a single delivery.
type Conn struct {
	ConnID string
	UserID string

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Conn{
		ConnID: connID,
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Push enqueues a payload without blocking. A full queue means the client is
// too slow to keep its realtime view; it gets closed and must resync from a
// snapshot fetch on reconnect.
func (c *Conn) Push(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		logger.Warnf("[conn] send queue full, closing conn=%s user=%s", c.ConnID, c.UserID)
		c.Close()
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// writePump is the single writer for the socket. gorilla/websocket forbids
// concurrent writes, so everything funnels through the send channel.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warnf("[conn] write failed conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes the socket until the peer goes away. The server channel
// is push-only; inbound frames are drained solely to drive pong/close
// handling.
func (c *Conn) readPump() {
	defer c.Close()
	c.ws.SetReadLimit(1 << 16)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[conn] read err conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
			}
			return
		}
	}
}
