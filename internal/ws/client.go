package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var errSendBufferFull = errors.New("send buffer full")

// Client is one live websocket connection. It satisfies the session
// registry's Conn interface: Send enqueues without blocking and the write
// pump owns the socket.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	info   ConnInfo
	onPong func()

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, info ConnInfo, onPong func()) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		info:   info,
		onPong: onPong,
		done:   make(chan struct{}),
	}
}

// Send enqueues a payload for the write pump. A full buffer means the client
// cannot keep up; the caller disconnects it.
func (c *Client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	default:
		return errSendBufferFull
	}
}

// Close tears the connection down. Safe to call from any goroutine, multiple
// times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
