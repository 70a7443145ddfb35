package transport

import (
	"context"
	"sync"
	"time"

	"liverun/internal/runner/protocol"
	"liverun/internal/runner/session"
	appErr "liverun/pkg/errors"
	"liverun/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// conn owns one WebSocket. Only writePump writes to ws; only readPump reads.
type conn struct {
	ws  *websocket.Conn
	cfg Config

	send    chan []byte
	closing chan struct{}
	broken  chan struct{}
	written chan struct{}

	closeOnce sync.Once
	closeCode int
	closeText string
	breakOnce sync.Once
	cancel    context.CancelFunc
}

func newConn(ws *websocket.Conn, cfg Config, cancel context.CancelFunc) *conn {
	return &conn{
		ws:      ws,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendBuffer),
		closing: make(chan struct{}),
		broken:  make(chan struct{}),
		written: make(chan struct{}),
		cancel:  cancel,
	}
}

// Emit queues an event for the writer. A full queue blocks the caller, which
// in turn stops draining the program's output pipes.
func (c *conn) Emit(ctx context.Context, ev protocol.Outbound) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.closing:
		return appErr.New(appErr.SessionClosed)
	case <-c.broken:
		return appErr.New(appErr.SessionClosed)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.closing:
		return appErr.New(appErr.SessionClosed)
	case <-c.broken:
		return appErr.New(appErr.SessionClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump decodes client frames into the session until the peer goes away.
// Returning cancels the session context, which the session treats as a disconnect.
func (c *conn) readPump(ctx context.Context, s *session.Session) {
	defer c.cancel()
	c.ws.SetReadLimit(c.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Warn(ctx, "websocket read failed", zap.Error(err))
			}
			return
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			logger.Warn(ctx, "discarding malformed frame", zap.Int("bytes", len(frame)), zap.Error(err))
			continue
		}
		if err := s.Deliver(ctx, msg); err != nil {
			return
		}
	}
}

// writePump sends queued frames and keepalive pings. After close is called it
// flushes what is queued and ends with a close frame.
func (c *conn) writePump(ctx context.Context) {
	defer close(c.written)
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.fail(ctx, err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.fail(ctx, err)
				return
			}
		case <-c.closing:
			c.flush(ctx)
			return
		}
	}
}

func (c *conn) flush(ctx context.Context) {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.fail(ctx, err)
				return
			}
		default:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

// close stops accepting events and asks the writer to flush and send a close frame.
func (c *conn) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.closing)
	})
}

func (c *conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// fail marks the connection unusable and ends the session as a disconnect.
func (c *conn) fail(ctx context.Context, err error) {
	c.breakOnce.Do(func() {
		logger.Warn(ctx, "websocket write failed", zap.Error(err))
		close(c.broken)
		c.cancel()
	})
}
