// Package conntest provides an in-memory exchange endpoint for exercising
// sessions without a network. A Server hands out connection.Client values
// through its Dial method, records every frame the client sends and answers
// them through a pluggable Responder.
package conntest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rickgao/exchange-ws/internal/connection"
)

// Frame is an outbound frame as the server decoded it.
type Frame map[string]any

// Str returns a string field of f.
func (f Frame) Str(name string) string {
	s, _ := f[name].(string)
	return s
}

// Responder returns the frames the server sends back for f. Replies are
// JSON-encoded; a []byte or json.RawMessage reply is delivered verbatim.
type Responder func(f Frame) []any

// Server is a fake exchange endpoint.
type Server struct {
	mu        sync.Mutex
	respond   Responder
	sent      []Frame
	current   *Conn
	dials     int
	dialErr   error
	seqnum    int64
	rejectAll map[string]string // channel -> rejection text
}

// NewServer creates a Server that acknowledges every subscribe and
// unsubscribe request (auth included).
func NewServer() *Server {
	s := &Server{rejectAll: make(map[string]string)}
	s.respond = s.Ack
	return s
}

// SetResponder replaces the responder. Passing nil silences the server.
func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = r
}

// Reject makes the default responder refuse requests on channel with text.
func (s *Server) Reject(channel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll[channel] = text
}

// FailDial makes subsequent dials fail with err (nil restores dialing).
func (s *Server) FailDial(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

// Dial implements connection.Dialer.
func (s *Server) Dial(ctx context.Context) (connection.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	c := newConn(s)
	s.current = c
	return c, nil
}

// Dials returns how many times Dial was called.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Sent returns every frame received so far, across connections.
func (s *Server) Sent() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.sent...)
}

// Count returns how many frames with action on channel were received.
func (s *Server) Count(action, channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, f := range s.sent {
		if f.Str("action") == action && f.Str("channel") == channel {
			n++
		}
	}
	return n
}

// WaitFor blocks until a frame satisfying pred was received, or fails after
// timeout.
func (s *Server) WaitFor(timeout time.Duration, pred func(Frame) bool) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		for _, f := range s.sent {
			if pred(f) {
				s.mu.Unlock()
				return f, nil
			}
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, errors.New("conntest: frame not received")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Push delivers frame to the current connection. It reports false when no
// connection is open.
func (s *Server) Push(frame any) bool {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()

	if c == nil {
		return false
	}
	return c.deliver(encode(frame))
}

// Drop fails the current connection with err, as a broken socket would.
func (s *Server) Drop(err error) {
	s.mu.Lock()
	c := s.current
	s.current = nil
	s.mu.Unlock()

	if c != nil {
		c.fail(err)
	}
}

// Ack is the default Responder. It echoes subscribe and unsubscribe requests
// back as acknowledgements carrying the request's parameters.
func (s *Server) Ack(f Frame) []any {
	action := f.Str("action")
	if action != "subscribe" && action != "unsubscribe" {
		return nil
	}

	channel := f.Str("channel")
	s.mu.Lock()
	text, reject := s.rejectAll[channel]
	s.seqnum++
	seq := s.seqnum
	s.mu.Unlock()

	reply := map[string]any{
		"seqnum":  seq,
		"channel": channel,
	}
	switch {
	case reject:
		reply["event"] = "rejected"
		reply["text"] = text
	case action == "subscribe":
		reply["event"] = "subscribed"
	default:
		reply["event"] = "unsubscribed"
	}
	for k, v := range f {
		if k == "action" || k == "channel" || k == "token" {
			continue
		}
		reply[k] = v
	}
	return []any{reply}
}

func (s *Server) received(c *Conn, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	s.mu.Lock()
	s.sent = append(s.sent, f)
	respond := s.respond
	s.mu.Unlock()

	if respond == nil {
		return
	}
	for _, reply := range respond(f) {
		c.deliver(encode(reply))
	}
}

func encode(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case json.RawMessage:
		return b
	case string:
		return []byte(b)
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic("conntest: encode reply: " + err.Error())
	}
	return data
}

// Conn is one fake connection. It implements connection.Client.
type Conn struct {
	server   *Server
	messages chan connection.TimestampedMessage
	errors   chan error
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func newConn(s *Server) *Conn {
	return &Conn{
		server:   s,
		messages: make(chan connection.TimestampedMessage, 1024),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect is a no-op; Dial returns connected clients.
func (c *Conn) Connect(ctx context.Context) error { return nil }

// Close closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Send hands data to the server and enqueues its replies.
func (c *Conn) Send(data []byte) error {
	if !c.IsConnected() {
		return connection.ErrNotConnected
	}
	c.server.received(c, data)
	return nil
}

// Messages returns the inbound frame channel.
func (c *Conn) Messages() <-chan connection.TimestampedMessage { return c.messages }

// Errors returns the terminal error channel.
func (c *Conn) Errors() <-chan error { return c.errors }

// IsConnected reports whether Close has not been called.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) deliver(data []byte) bool {
	msg := connection.TimestampedMessage{Data: data, ReceivedAt: time.Now()}
	select {
	case c.messages <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) fail(err error) {
	select {
	case c.errors <- err:
	default:
	}
}
