package websocket

import (
	"context"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

const defaultHandshakeTimeout = 10 * time.Second

// Client is a reconnecting subscriber over one websocket endpoint. Run
// dials, pumps frames into the configured handler, and redials with
// backoff until the context is cancelled.
type Client struct {
	opt Option
}

// NewClient validates opt lazily; Run reports configuration errors.
func NewClient(opt Option) *Client {
	if opt.Backoff == (Backoff{}) {
		opt.Backoff = DefaultBackoff()
	}
	if opt.HandshakeTimeout <= 0 {
		opt.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{opt: opt}
}

// Run blocks until ctx is cancelled, redialing between sessions. The
// returned error is ctx.Err() on cancellation or a configuration error.
func (c *Client) Run(ctx context.Context) error {
	if c.opt.URL == "" {
		return ErrNoURL
	}
	if c.opt.OnMessage == nil {
		return ErrNilHandler
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.session(ctx)
		if c.opt.OnDisconnect != nil {
			c.opt.OnDisconnect(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opt.Backoff.Next(attempt)):
		}
	}
}

// session runs one dial-read-close cycle and returns its terminal error.
func (c *Client) session(ctx context.Context) error {
	dialer := gws.Dialer{HandshakeTimeout: c.opt.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opt.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	w := &connWriter{conn: conn}
	if c.opt.OnConnect != nil {
		if err := c.opt.OnConnect(ctx, w); err != nil {
			return err
		}
	}

	// Close the connection when ctx is cancelled so the blocked read
	// returns instead of hanging past shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if c.opt.PingInterval > 0 {
		go c.pingLoop(done, w)
	}

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != gws.TextMessage && msgType != gws.BinaryMessage {
			continue
		}
		c.opt.OnMessage(payload)
	}
}

func (c *Client) pingLoop(done <-chan struct{}, w *connWriter) {
	ticker := time.NewTicker(c.opt.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := w.writeControl(gws.PingMessage); err != nil {
				return
			}
		}
	}
}

// connWriter serializes writes; gorilla connections allow one concurrent
// writer only.
type connWriter struct {
	mu   sync.Mutex
	conn *gws.Conn
}

func (w *connWriter) WriteText(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(gws.TextMessage, payload)
}

func (w *connWriter) writeControl(msgType int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(msgType, nil, time.Now().Add(time.Second))
}
