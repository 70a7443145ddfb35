// Package runnerclient speaks the session protocol over a WebSocket.
package runnerclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"liverun/internal/runner/protocol"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// ErrClosed is returned by writes after the connection is gone.
var ErrClosed = errors.New("connection closed")

// Client is one session connection. Events are delivered in arrival order and
// the channel is closed when the server closes the connection.
type Client struct {
	conn   *websocket.Conn
	events chan protocol.Outbound

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	closeErr error
}

// Dial opens a session at url (ws:// or wss://).
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s failed: %s", url, resp.Status)
		}
		return nil, fmt.Errorf("dial %s failed: %w", url, err)
	}
	c := &Client{
		conn:   conn,
		events: make(chan protocol.Outbound, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events yields server events until the connection ends.
func (c *Client) Events() <-chan protocol.Outbound {
	return c.events
}

// Err reports why the event stream ended. A normal server close yields the
// close frame as *websocket.CloseError.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Start submits source code for language.
func (c *Client) Start(language, source string) error {
	frame, err := protocol.Start(language, source)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Send forwards data to the program's stdin.
func (c *Client) Send(data string) error {
	frame, err := protocol.Stdin(data)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// CloseInput signals end of stdin.
func (c *Client) CloseInput() error {
	return c.write(protocol.EOF())
}

// Stop asks the server to terminate the session.
func (c *Client) Stop() error {
	return c.write(protocol.Stop())
}

// Close sends a close frame and drops the connection. Events still undelivered
// are discarded.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closeErr = err
			c.mu.Unlock()
			return
		}
		ev, err := protocol.DecodeOutbound(frame)
		if err != nil {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			c.mu.Lock()
			c.closeErr = ErrClosed
			c.mu.Unlock()
			return
		}
	}
}
