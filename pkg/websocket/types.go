// Package websocket provides a small reconnecting subscriber client over
// gorilla/websocket: dial, read frames, hand each payload to a callback,
// and redial with exponential backoff when the connection drops.
package websocket

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNilHandler is returned by Run when no message handler was set.
	ErrNilHandler = errors.New("websocket: nil message handler")
	// ErrNoURL is returned by Run when the endpoint URL is empty.
	ErrNoURL = errors.New("websocket: empty endpoint url")
)

// MessageHandler receives the payload of each text or binary frame. It
// runs on the client's read loop; a slow handler delays the next read.
type MessageHandler func(payload []byte)

// Backoff configures exponential backoff pacing for reconnect attempts.
type Backoff struct {
	// Min is the backoff duration for the first attempt.
	Min time.Duration
	// Max caps the backoff duration.
	Max time.Duration
	// Factor multiplies the wait duration after each attempt.
	Factor float64
	// Jitter is the fraction (0-1) of randomness applied to the wait.
	Jitter float64
}

// Option configures a Client.
type Option struct {
	// URL is the ws:// or wss:// endpoint to subscribe to. Required.
	URL string
	// OnMessage handles every received frame payload. Required.
	OnMessage MessageHandler
	// OnConnect runs after each successful dial, before the read loop;
	// use it to send a subscribe frame. Optional.
	OnConnect func(ctx context.Context, w Writer) error
	// OnDisconnect runs after a session ends with its terminal error. Optional.
	OnDisconnect func(err error)
	// Backoff defines reconnect pacing. Optional; DefaultBackoff when all
	// fields are zero.
	Backoff Backoff
	// PingInterval enables periodic ping frames when > 0. Optional.
	PingInterval time.Duration
	// HandshakeTimeout bounds each dial attempt. Optional; default 10s.
	HandshakeTimeout time.Duration
}

// Writer sends one text frame on the live connection; handed to OnConnect
// for subscribe messages.
type Writer interface {
	WriteText(payload []byte) error
}
