package connection

import (
	"context"
	"sync"
	"time"

	"github.com/rickgao/exchange-ws/internal/model"
)

// Waiter is a one-shot future attached to the session's dispatcher. It
// completes with the first inbound event its predicate accepts, or with an
// error if the session is flushed or loses its connection first.
type Waiter struct {
	session *Session
	match   func(model.Event) bool
	onMatch func(model.Event)

	result chan waitResult
	once   sync.Once
}

type waitResult struct {
	ev  model.Event
	err error
}

// Wait blocks until the waiter completes, ctx is done or timeout elapses
// (timeout <= 0 waits without a deadline). A waiter that gives up is
// detached so it can no longer consume frames.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (model.Event, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-w.result:
		return r.ev, r.err
	case <-ctx.Done():
		return w.abandon(ctx.Err())
	case <-expired:
		return w.abandon(ErrTimeout)
	}
}

// Cancel detaches the waiter without waiting.
func (w *Waiter) Cancel() {
	w.session.removeWaiter(w)
}

// abandon detaches the waiter. If the dispatcher already claimed it the
// result is in flight and wins over err.
func (w *Waiter) abandon(err error) (model.Event, error) {
	if w.session.removeWaiter(w) {
		return model.Event{}, err
	}
	r := <-w.result
	return r.ev, r.err
}

func (w *Waiter) complete(ev model.Event) {
	if w.onMatch != nil {
		w.onMatch(ev)
	}
	w.deliver(waitResult{ev: ev})
}

func (w *Waiter) fail(err error) {
	w.deliver(waitResult{err: err})
}

func (w *Waiter) deliver(r waitResult) {
	w.once.Do(func() {
		w.result <- r
	})
}
