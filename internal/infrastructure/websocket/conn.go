package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pricestream/internal/application/port"
)

// Keepalive controls ping/pong liveness.
type Keepalive struct {
	PongWait  time.Duration // no frame for this long means the peer is gone
	PingEvery time.Duration // must be shorter than PongWait
}

var DefaultKeepalive = Keepalive{
	PongWait:  60 * time.Second,
	PingEvery: 25 * time.Second,
}

const (
	controlWriteWait = 5 * time.Second
	defaultWriteWait = 10 * time.Second
	maxMessageBytes  = 64 << 10
)

// Conn adapts a gorilla connection to port.Conn. Reads happen on one
// goroutine; writes are serialized by writeMu; a background goroutine
// pings the peer until Close.
type Conn struct {
	ws        *websocket.Conn
	keepalive Keepalive

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(ws *websocket.Conn, keepalive Keepalive) *Conn {
	if keepalive.PongWait <= 0 {
		keepalive.PongWait = DefaultKeepalive.PongWait
	}
	if keepalive.PingEvery <= 0 || keepalive.PingEvery >= keepalive.PongWait {
		keepalive.PingEvery = keepalive.PongWait * 9 / 20
	}
	c := &Conn{ws: ws, keepalive: keepalive, done: make(chan struct{})}

	ws.SetReadLimit(maxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(keepalive.PongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(keepalive.PongWait))
		return nil
	})

	go c.pingLoop()
	return c
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.keepalive.PingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(controlWriteWait)); err != nil {
				log.Debug().Err(err).Str("remote", c.RemoteAddr()).Msg("ping failed")
				return
			}
		}
	}
}

// ReadText returns the next data frame as text. Closing the connection
// unblocks a pending read.
func (c *Conn) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, b, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.keepalive.PongWait))
	return string(b), nil
}

func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// Close sends a normal closure frame and releases the socket. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

var _ port.Conn = (*Conn)(nil)
