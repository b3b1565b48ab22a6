// Package trading correlates order commands with the asynchronous order
// updates of the trading channel.
//
// A Trader is either subscribed (the caller holds a standing trading
// subscription and observes order updates itself) or unsubscribed, in which
// case each order command opens a temporary subscription, waits for the update
// that answers it and tears the subscription down again.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/model"
	"github.com/rickgao/exchange-ws/internal/router"
)

// Config configures a Trader.
type Config struct {
	OrderTimeout time.Duration      // Max wait for the update answering an order command (0 = wait forever)
	Observer     connection.Handler // Optional; sees every trading event the Trader receives
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OrderTimeout: 30 * time.Second,
	}
}

var tradingKey = connection.NewKey(model.ChannelTrading, nil)

// Trader runs order operations over a Multiplexer.
type Trader struct {
	mux    *router.Multiplexer
	token  func() string
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	subscribed bool
	gen        uint64 // session generation the standing subscription belongs to
}

// New creates a Trader. token is consulted on every operation, so credentials
// can be set after construction.
func New(mux *router.Multiplexer, token func() string, cfg Config, logger *slog.Logger) *Trader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Trader{
		mux:    mux,
		token:  token,
		cfg:    cfg,
		logger: logger,
	}
}

// IsSubscribed reports whether the Trader holds a standing trading
// subscription. A flush or a lost connection resets the mode. While an
// UnsubscribeTrading is awaiting its acknowledgement the mode stays set.
func (t *Trader) IsSubscribed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subscribed && t.mux.Session().Generation() != t.gen {
		t.subscribed = false
	}
	return t.subscribed
}

// Reset forgets the standing subscription without unsubscribing.
func (t *Trader) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed = false
}

// SubscribeTrading opens the standing trading subscription. Every trading
// event is forwarded to handler until UnsubscribeTrading.
func (t *Trader) SubscribeTrading(ctx context.Context, handler connection.Handler) error {
	if t.IsSubscribed() {
		return ErrAlreadySubscribed
	}
	token, err := t.requireToken()
	if err != nil {
		return err
	}

	if err := t.mux.Subscribe(ctx, model.ChannelTrading, nil, t.observed(handler), token); err != nil {
		if errors.Is(err, router.ErrDuplicateSubscription) {
			return fmt.Errorf("%w: %v", ErrAlreadySubscribed, err)
		}
		return err
	}

	gen, ok := t.mux.Session().ListenerGeneration(tradingKey)
	if !ok {
		return fmt.Errorf("subscribe trading: %w", connection.ErrFlushed)
	}

	t.mu.Lock()
	t.subscribed = true
	t.gen = gen
	t.mu.Unlock()

	t.logger.Info("trading subscription opened")
	return nil
}

// UnsubscribeTrading closes the standing trading subscription. The mode only
// changes once the server confirms.
func (t *Trader) UnsubscribeTrading(ctx context.Context) error {
	if !t.IsSubscribed() {
		return ErrNotSubscribed
	}

	if err := t.mux.Unsubscribe(ctx, model.ChannelTrading, nil); err != nil {
		// A rejection restores the listener; a timeout or lost connection
		// leaves it removed.
		t.mu.Lock()
		t.subscribed = t.mux.IsSubscribed(model.ChannelTrading, nil)
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.subscribed = false
	t.mu.Unlock()

	t.logger.Info("trading subscription closed")
	return nil
}

// CreateOrder places an order. With a standing subscription the command is
// sent and (nil, nil) is returned; the caller sees the outcome on its own
// subscription. Otherwise CreateOrder waits for the order's first update; an
// update reporting ordStatus rejected returns the order along with an
// *OrderRejected. A missing ClOrdID is generated.
func (t *Trader) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	if req.ClOrdID == "" {
		req.ClOrdID = model.NewClOrdID()
	}

	if t.IsSubscribed() {
		return nil, t.send(ctx, req.Frame())
	}

	m := &createMatcher{clOrdID: req.ClOrdID}
	resolved, err := t.correlate(ctx, m, req.Frame())
	if !resolved || m.order == nil {
		return nil, err
	}
	if m.order.OrdStatus == model.OrderStatusRejected {
		return m.order, err
	}

	t.logger.Info("order created",
		"clOrdID", m.order.ClOrdID,
		"orderID", m.order.OrderID,
		"status", m.order.OrdStatus,
	)
	return m.order, err
}

// CancelOrder cancels orderID. With a standing subscription the command is
// sent and (nil, nil) is returned. Otherwise CancelOrder waits until the order
// is reported cancelled.
func (t *Trader) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if t.IsSubscribed() {
		return nil, t.send(ctx, model.CancelFrame(orderID))
	}

	m := &cancelMatcher{orderID: orderID}
	resolved, err := t.correlate(ctx, m, model.CancelFrame(orderID))
	if !resolved || m.order == nil {
		return nil, err
	}

	t.logger.Info("order cancelled", "orderID", orderID)
	return m.order, err
}

// GetOpenOrders returns the orders of the first trading snapshot. The
// temporary subscription is torn down before returning.
func (t *Trader) GetOpenOrders(ctx context.Context) ([]model.Order, error) {
	if t.IsSubscribed() {
		return nil, ErrAlreadySubscribed
	}
	token, err := t.requireToken()
	if err != nil {
		return nil, err
	}

	ev, err := t.mux.SubscribeOnce(ctx, model.ChannelTrading, nil, token, router.IsSnapshot)
	if ev.Event == "" {
		return nil, err
	}
	var snap model.OrdersSnapshot
	if derr := ev.Decode(&snap); derr != nil {
		return nil, fmt.Errorf("decode orders snapshot: %w", derr)
	}
	return snap.Orders, err
}

// CancelAllOrders cancels every live order and returns them once all have
// been reported cancelled. A rejection of any single cancel fails the whole
// operation; cancels already applied stay applied.
func (t *Trader) CancelAllOrders(ctx context.Context) ([]model.Order, error) {
	orders, err := t.GetOpenOrders(ctx)
	if err != nil {
		return nil, err
	}

	live := orders[:0]
	for _, o := range orders {
		if !o.OrdStatus.IsTerminal() {
			live = append(live, o)
		}
	}
	if len(live) == 0 {
		return []model.Order{}, nil
	}

	frames := make([]model.Frame, len(live))
	for i, o := range live {
		frames[i] = model.CancelFrame(o.OrderID)
	}

	m := newCancelAllMatcher(live)
	resolved, err := t.correlate(ctx, m, frames...)
	if !resolved || len(m.pending) > 0 {
		return nil, err
	}

	t.logger.Info("all orders cancelled", "count", len(m.orders))
	return m.orders, err
}

// correlate opens a temporary trading subscription, sends frames once it is
// confirmed and feeds every following trading event to m until m resolves.
// The subscription is torn down on every outcome. resolved reports whether m
// finished; only then may the caller read m's state.
func (t *Trader) correlate(ctx context.Context, m matcher, frames ...model.Frame) (resolved bool, err error) {
	token, err := t.requireToken()
	if err != nil {
		return false, err
	}

	outcome := make(chan error, 1)
	done := false
	handler := func(ev model.Event) {
		if done {
			return
		}
		if ev.Event != model.EventUpdated && ev.Event != model.EventRejected {
			return
		}
		finished, err := m.observe(ev)
		if finished {
			done = true
			outcome <- err
		}
	}

	if err := t.mux.Subscribe(ctx, model.ChannelTrading, nil, t.observed(handler), token); err != nil {
		if errors.Is(err, router.ErrDuplicateSubscription) {
			return false, fmt.Errorf("%w: trading channel in use", err)
		}
		return false, err
	}

	resolved, err = t.await(ctx, outcome, token, frames)
	if relErr := t.release(ctx); relErr != nil && err == nil {
		err = relErr
	}
	return resolved, err
}

func (t *Trader) await(ctx context.Context, outcome <-chan error, token string, frames []model.Frame) (bool, error) {
	for _, f := range frames {
		if err := t.mux.Send(ctx, f, token); err != nil {
			return false, err
		}
	}

	var expired <-chan time.Time
	if t.cfg.OrderTimeout > 0 {
		timer := time.NewTimer(t.cfg.OrderTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-outcome:
		return true, err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-expired:
		return false, fmt.Errorf("await order update: %w", router.ErrTimeout)
	}
}

// release tears down a temporary subscription, even if ctx is already done.
func (t *Trader) release(ctx context.Context) error {
	if err := t.mux.Unsubscribe(context.WithoutCancel(ctx), model.ChannelTrading, nil); err != nil {
		t.logger.Warn("failed to release trading subscription", "error", err)
		return fmt.Errorf("release trading subscription: %w", err)
	}
	return nil
}

func (t *Trader) send(ctx context.Context, f model.Frame) error {
	token, err := t.requireToken()
	if err != nil {
		return err
	}
	return t.mux.Send(ctx, f, token)
}

func (t *Trader) requireToken() (string, error) {
	var token string
	if t.token != nil {
		token = t.token()
	}
	if token == "" {
		return "", ErrAuthRequired
	}
	return token, nil
}

// observed wraps h so the configured Observer sees every event first.
func (t *Trader) observed(h connection.Handler) connection.Handler {
	if t.cfg.Observer == nil {
		return h
	}
	return func(ev model.Event) {
		t.cfg.Observer(ev)
		h(ev)
	}
}
