package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/model"
)

// Multiplexer turns the session's single connection into independent channel
// subscriptions, one listener per channel and parameter set.
type Multiplexer struct {
	session *connection.Session
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMultiplexer creates a Multiplexer over session.
func NewMultiplexer(session *connection.Session, m *metrics.Metrics, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Multiplexer{
		session: session,
		metrics: m,
		logger:  logger,
	}
}

// Session returns the underlying session.
func (m *Multiplexer) Session() *connection.Session {
	return m.session
}

// Subscribe registers handler for channel with params and waits for the
// server's acknowledgement. A non-empty token authenticates the connection
// first; it never appears in the subscribe frame.
//
// Once subscribed, handler receives every frame for the key, starting with
// the acknowledgement. Handlers run on the dispatch goroutine.
func (m *Multiplexer) Subscribe(ctx context.Context, channel model.Channel, params connection.Params, handler connection.Handler, token string) error {
	if !channel.IsValid() || channel == model.ChannelAuth {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}

	key := connection.NewKey(channel, params)
	l, err := m.session.Reserve(key, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", key, err)
	}

	subscribed := false
	defer func() {
		if !subscribed {
			m.session.Release(l)
		}
	}()

	if _, err := m.session.EnsureConnection(ctx); err != nil {
		return err
	}
	if token != "" {
		if err := m.session.Authenticate(ctx, token); err != nil {
			return err
		}
	}

	activated := false
	w := m.session.Expect(ackFor(key, model.EventSubscribed), func(ev model.Event) {
		if ev.Event == model.EventSubscribed {
			activated = m.session.Activate(l)
		}
	})

	// Written on the connection that was just authenticated; a reset in
	// between fails the request instead of dialing a fresh connection.
	if err := m.session.SendFor(l, requestFrame(model.ActionSubscribe, channel, params)); err != nil {
		w.Cancel()
		m.metrics.Ack("subscribe", "error")
		return err
	}

	ev, err := w.Wait(ctx, m.session.AckTimeout())
	if err != nil {
		m.metrics.Ack("subscribe", outcome(err))
		return fmt.Errorf("subscribe %s: %w", key, err)
	}
	if ev.Event == model.EventRejected {
		m.metrics.Ack("subscribe", "rejected")
		m.logger.Warn("subscription rejected", "key", key.String(), "text", ev.Text)
		return &SubscriptionRejected{Key: key, Text: ev.Text}
	}
	if !activated {
		return fmt.Errorf("subscribe %s: %w", key, connection.ErrFlushed)
	}

	subscribed = true
	m.metrics.Ack("subscribe", "accepted")
	m.logger.Info("subscribed", "key", key.String())
	return nil
}

// Unsubscribe removes the listener for channel with params and waits for the
// server's acknowledgement. The listener stops receiving frames before the
// request is sent; if the server rejects the request it is restored.
func (m *Multiplexer) Unsubscribe(ctx context.Context, channel model.Channel, params connection.Params) error {
	key := connection.NewKey(channel, params)
	l, ok := m.session.Remove(key)
	if !ok {
		return fmt.Errorf("unsubscribe %s: %w", key, ErrNotSubscribed)
	}

	w := m.session.Expect(ackFor(key, model.EventUnsubscribed), func(ev model.Event) {
		if ev.Event == model.EventRejected {
			m.session.Restore(l)
		}
	})

	if err := m.session.SendFor(l, requestFrame(model.ActionUnsubscribe, channel, params)); err != nil {
		w.Cancel()
		m.session.Restore(l)
		m.metrics.Ack("unsubscribe", "error")
		return err
	}

	ev, err := w.Wait(ctx, m.session.AckTimeout())
	if err != nil {
		m.metrics.Ack("unsubscribe", outcome(err))
		return fmt.Errorf("unsubscribe %s: %w", key, err)
	}
	if ev.Event == model.EventRejected {
		m.metrics.Ack("unsubscribe", "rejected")
		m.logger.Warn("unsubscription rejected", "key", key.String(), "text", ev.Text)
		return &UnsubscriptionRejected{Key: key, Text: ev.Text}
	}

	m.metrics.Ack("unsubscribe", "accepted")
	m.logger.Info("unsubscribed", "key", key.String())
	return nil
}

// SubscribeOnce subscribes, waits for the first event accepted by match
// (IsSnapshot when nil), unsubscribes and returns the event. If the event
// arrived but the unsubscribe failed, both are returned.
func (m *Multiplexer) SubscribeOnce(ctx context.Context, channel model.Channel, params connection.Params, token string, match MatchFunc) (model.Event, error) {
	if match == nil {
		match = IsSnapshot
	}

	found := make(chan model.Event, 1)
	handler := func(ev model.Event) {
		if !match(ev) {
			return
		}
		select {
		case found <- ev:
		default:
		}
	}

	if err := m.Subscribe(ctx, channel, params, handler, token); err != nil {
		return model.Event{}, err
	}

	var (
		ev      model.Event
		waitErr error
		expired <-chan time.Time
	)
	if timeout := m.session.AckTimeout(); timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ev = <-found:
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-expired:
		waitErr = ErrTimeout
	}

	unsubErr := m.Unsubscribe(context.WithoutCancel(ctx), channel, params)
	if waitErr != nil {
		return model.Event{}, fmt.Errorf("await %s: %w", connection.NewKey(channel, params), waitErr)
	}
	if unsubErr != nil {
		return ev, fmt.Errorf("release %s: %w", connection.NewKey(channel, params), unsubErr)
	}
	return ev, nil
}

// Stream subscribes and queues every event for the key into an unbounded
// Buffer, so consumers can block without stalling the dispatch goroutine.
// The caller unsubscribes and then closes the buffer.
func (m *Multiplexer) Stream(ctx context.Context, channel model.Channel, params connection.Params, token string) (*Buffer[model.Event], error) {
	buf := NewBuffer[model.Event]()
	if err := m.Subscribe(ctx, channel, params, func(ev model.Event) { buf.Send(ev) }, token); err != nil {
		buf.Close()
		return nil, err
	}
	return buf, nil
}

// Send writes frame, authenticating first when token is non-empty.
func (m *Multiplexer) Send(ctx context.Context, frame model.Frame, token string) error {
	return m.session.Send(ctx, frame, token)
}

// IsSubscribed reports whether an active listener exists for channel with params.
func (m *Multiplexer) IsSubscribed(channel model.Channel, params connection.Params) bool {
	return m.session.IsSubscribed(connection.NewKey(channel, params))
}

// ackFor matches the acknowledgement (want) or rejection of a request for key.
func ackFor(key connection.Key, want model.EventType) func(model.Event) bool {
	return func(ev model.Event) bool {
		if ev.Event != want && ev.Event != model.EventRejected {
			return false
		}
		return key.Matches(ev)
	}
}

// requestFrame builds a subscribe or unsubscribe frame. Credentials and nil
// params are left out.
func requestFrame(action model.Action, channel model.Channel, params connection.Params) model.Frame {
	f := model.NewFrame(action, channel)
	for name, v := range params {
		if v == nil || name == "token" {
			continue
		}
		f[name] = v
	}
	return f
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
