package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/model"
)

// Session owns one lazily-dialed connection, its authentication state, the
// listener registry and the pending waiters. All components that share a
// connection share a Session; nothing is process-global.
type Session struct {
	cfg     SessionConfig
	dial    Dialer
	metrics *metrics.Metrics
	logger  *slog.Logger

	connectGroup singleflight.Group
	authGroup    singleflight.Group

	mu            sync.Mutex
	conn          *liveConn
	gen           uint64 // bumped whenever state is reset (flush, lost connection)
	authenticated bool
	registry      *ListenerRegistry
	waiters       []*Waiter
}

// liveConn is the current connection plus the signal that stops its dispatcher.
type liveConn struct {
	client Client
	stop   chan struct{}
}

// NewSession creates a Session that dials with dial on first use.
func NewSession(cfg SessionConfig, dial Dialer, m *metrics.Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		cfg:      cfg,
		dial:     dial,
		metrics:  m,
		logger:   logger,
		registry: NewListenerRegistry(),
	}
}

// AckTimeout returns the configured acknowledgement timeout.
func (s *Session) AckTimeout() time.Duration {
	return s.cfg.AckTimeout
}

// IsConnected reports whether the session holds a live connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// IsAuthenticated reports whether the current connection has authenticated.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// EnsureConnection returns the live connection, dialing one if needed.
// Concurrent callers share a single dial; the first caller's ctx bounds it.
func (s *Session) EnsureConnection(ctx context.Context) (Client, error) {
	s.mu.Lock()
	if s.conn != nil {
		c := s.conn.client
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	v, err, _ := s.connectGroup.Do("connect", func() (any, error) {
		s.mu.Lock()
		if s.conn != nil {
			c := s.conn.client
			s.mu.Unlock()
			return c, nil
		}
		gen := s.gen
		s.mu.Unlock()

		c, err := s.dial(ctx)
		if err == nil && c == nil {
			err = errClientWithoutTransport
		}
		if err != nil {
			s.metrics.Connect(false)
			s.logger.Warn("connect failed", "error", err)
			return nil, &ConnectionError{Err: err}
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			c.Close()
			return nil, &ConnectionError{Err: ErrFlushed}
		}
		lc := &liveConn{client: c, stop: make(chan struct{})}
		s.conn = lc
		s.mu.Unlock()

		s.metrics.Connect(true)
		s.logger.Info("connection established")

		go s.dispatchLoop(lc)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

// Authenticate performs the auth channel handshake once per connection.
// It returns immediately, without sending anything, if the connection is
// already authenticated. Concurrent callers with the same token share one
// handshake.
func (s *Session) Authenticate(ctx context.Context, token string) error {
	if s.IsAuthenticated() {
		return nil
	}

	_, err, _ := s.authGroup.Do(token, func() (any, error) {
		if s.IsAuthenticated() {
			return nil, nil
		}
		return nil, s.authenticate(ctx, token)
	})
	return err
}

func (s *Session) authenticate(ctx context.Context, token string) error {
	c, err := s.EnsureConnection(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	w := s.Expect(
		func(ev model.Event) bool {
			return ev.Channel == model.ChannelAuth &&
				(ev.Event == model.EventSubscribed || ev.Event == model.EventRejected)
		},
		func(ev model.Event) {
			if ev.Event != model.EventSubscribed {
				return
			}
			s.mu.Lock()
			if s.gen == gen {
				s.authenticated = true
			}
			s.mu.Unlock()
		},
	)

	frame := model.NewFrame(model.ActionSubscribe, model.ChannelAuth)
	frame["token"] = token
	if err := s.write(c, frame); err != nil {
		w.Cancel()
		s.metrics.Ack("auth", "error")
		return err
	}

	ev, err := w.Wait(ctx, s.cfg.AckTimeout)
	if err != nil {
		s.metrics.Ack("auth", outcome(err))
		return fmt.Errorf("authenticate: %w", err)
	}
	if ev.Event == model.EventRejected {
		s.metrics.Ack("auth", "rejected")
		s.logger.Warn("authentication rejected", "text", ev.Text)
		return &AuthenticationRejected{Text: ev.Text}
	}

	s.metrics.Ack("auth", "accepted")
	s.logger.Info("authenticated")
	return nil
}

// Send ensures a connection, authenticates first when token is non-empty,
// and writes frame.
func (s *Session) Send(ctx context.Context, frame model.Frame, token string) error {
	c, err := s.EnsureConnection(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		if err := s.Authenticate(ctx, token); err != nil {
			return err
		}
	}
	return s.write(c, frame)
}

// SendFor writes frame on the connection l was reserved on. Unlike Send it
// never dials or authenticates: if the session was reset since l was
// reserved, or l's connection is not up yet, it fails with a ConnectionError
// wrapping ErrFlushed.
func (s *Session) SendFor(l *Listener, frame model.Frame) error {
	s.mu.Lock()
	if l.gen != s.gen || s.conn == nil {
		s.mu.Unlock()
		return &ConnectionError{Err: ErrFlushed}
	}
	c := s.conn.client
	s.mu.Unlock()

	return s.write(c, frame)
}

func (s *Session) write(c Client, frame model.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := c.Send(data); err != nil {
		return &TransportError{Err: err}
	}

	s.logger.Debug("sent frame",
		"action", frame.Action(),
		"channel", frame.Channel(),
	)
	return nil
}

// Flush discards the connection, every listener, every pending waiter and
// the authentication state. No unsubscribe frames are sent; the local socket
// is closed so its goroutines exit. Pending waiters fail with ErrFlushed.
func (s *Session) Flush() {
	s.mu.Lock()
	lc := s.conn
	listeners := s.registry.Len()
	waiters := s.resetLocked()
	s.mu.Unlock()

	if lc != nil {
		close(lc.stop)
		lc.client.Close()
	}
	for _, w := range waiters {
		w.fail(ErrFlushed)
	}

	s.metrics.SetListeners(0)
	s.logger.Info("session flushed",
		"listeners", listeners,
		"waiters", len(waiters),
	)
}

// resetLocked clears all session state and returns the waiters to fail.
// Must be called with s.mu held.
func (s *Session) resetLocked() []*Waiter {
	waiters := s.waiters
	s.conn = nil
	s.gen++
	s.authenticated = false
	s.registry.Clear()
	s.waiters = nil
	return waiters
}

// Expect registers a one-shot waiter. match runs on the dispatch goroutine
// for every inbound frame until it returns true; onMatch (optional) then runs
// on the same goroutine before the frame is offered to listeners. Register
// before sending the request the waiter correlates with.
func (s *Session) Expect(match func(model.Event) bool, onMatch func(model.Event)) *Waiter {
	w := &Waiter{
		session: s,
		match:   match,
		onMatch: onMatch,
		result:  make(chan waitResult, 1),
	}

	s.mu.Lock()
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()
	return w
}

// removeWaiter detaches w. It returns false if w was no longer pending.
func (s *Session) removeWaiter(w *Waiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.waiters {
		if p == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Reserve registers an inactive listener for key. It fails with
// ErrDuplicateSubscription, changing nothing, if key is already taken.
func (s *Session) Reserve(key Key, h Handler) (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := &Listener{Key: key, Handler: h, gen: s.gen}
	if !s.registry.Add(l) {
		return nil, ErrDuplicateSubscription
	}
	s.metrics.SetListeners(s.registry.Len())
	return l, nil
}

// Activate starts routing frames to l. It returns false if l is no longer
// registered (released, flushed).
func (s *Session) Activate(l *Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.registry.Get(l.Key); !ok || cur != l || l.gen != s.gen {
		return false
	}
	l.active = true
	return true
}

// Release drops l if it is still the listener registered for its key.
func (s *Session) Release(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.registry.Get(l.Key); ok && cur == l {
		s.registry.Remove(l.Key)
		s.metrics.SetListeners(s.registry.Len())
	}
}

// Remove detaches the active listener for key and returns it.
func (s *Session) Remove(key Key) (*Listener, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.registry.Get(key)
	if !ok || !l.active {
		return nil, false
	}
	s.registry.Remove(key)
	s.metrics.SetListeners(s.registry.Len())
	return l, true
}

// Restore re-registers a listener previously returned by Remove. It is a
// no-op, returning false, if the session was reset in between or the key has
// been taken again.
func (s *Session) Restore(l *Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.gen != s.gen || !s.registry.Add(l) {
		return false
	}
	s.metrics.SetListeners(s.registry.Len())
	return true
}

// Generation identifies the current session state. It changes on every
// Flush and lost connection.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// ListenerGeneration returns the generation of the active listener for key.
func (s *Session) ListenerGeneration(key Key) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.registry.Get(key)
	if !ok || !l.active {
		return 0, false
	}
	return l.gen, true
}

// IsSubscribed reports whether an active listener exists for key.
func (s *Session) IsSubscribed(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.registry.Get(key)
	return ok && l.active
}

// Listeners returns the registered keys, pending ones included.
func (s *Session) Listeners() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Keys()
}

// dispatchLoop delivers frames from lc until it is stopped or fails.
func (s *Session) dispatchLoop(lc *liveConn) {
	for {
		select {
		case <-lc.stop:
			return
		case msg := <-lc.client.Messages():
			s.dispatch(msg)
		case err := <-lc.client.Errors():
			s.drain(lc)
			s.connectionLost(lc, err)
			return
		}
	}
}

// drain dispatches frames that were buffered before the connection failed.
func (s *Session) drain(lc *liveConn) {
	for {
		select {
		case <-lc.stop:
			return
		case msg := <-lc.client.Messages():
			s.dispatch(msg)
		default:
			return
		}
	}
}

// dispatch offers one frame to the first matching waiter, then to every
// listener whose key it matches.
func (s *Session) dispatch(msg TimestampedMessage) {
	ev, err := model.ParseEvent(msg.Data)
	if err != nil {
		s.metrics.ParseError()
		s.logger.Warn("dropping undecodable frame", "error", err)
		return
	}
	s.metrics.FrameReceived(string(ev.Channel), string(ev.Event))

	s.mu.Lock()
	var claimed *Waiter
	for i, w := range s.waiters {
		if w.match(ev) {
			claimed = w
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if claimed != nil {
		claimed.complete(ev)
	}

	s.mu.Lock()
	handlers := s.registry.Routes(ev)
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}

	if claimed == nil && len(handlers) == 0 {
		s.metrics.FrameUnrouted()
		s.logger.Debug("unrouted frame",
			"channel", ev.Channel,
			"event", ev.Event,
			"seqnum", ev.Seqnum,
		)
	}
}

// connectionLost resets the session after the transport failed.
func (s *Session) connectionLost(lc *liveConn, cause error) {
	s.mu.Lock()
	if s.conn != lc {
		s.mu.Unlock()
		return
	}
	listeners := s.registry.Len()
	waiters := s.resetLocked()
	s.mu.Unlock()

	close(lc.stop)
	lc.client.Close()

	err := &ConnectionError{Err: fmt.Errorf("%w: %v", ErrConnectionLost, cause)}
	for _, w := range waiters {
		w.fail(err)
	}

	s.metrics.SetListeners(0)
	s.logger.Warn("connection lost",
		"error", cause,
		"listeners_dropped", listeners,
		"waiters_failed", len(waiters),
	)

	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(cause)
	}
}

func outcome(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "error"
}
