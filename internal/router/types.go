package router

import (
	"fmt"

	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/model"
)

// Errors shared with the connection layer, re-exported for callers that only
// deal with the multiplexer.
var (
	ErrDuplicateSubscription = connection.ErrDuplicateSubscription
	ErrNotSubscribed         = connection.ErrNotSubscribed
	ErrInvalidChannel        = connection.ErrInvalidChannel
	ErrTimeout               = connection.ErrTimeout
)

// SubscriptionRejected is returned when the server refuses a subscribe request.
type SubscriptionRejected struct {
	Key  connection.Key
	Text string
}

func (e *SubscriptionRejected) Error() string {
	return fmt.Sprintf("subscribe %s rejected: %s", e.Key, e.Text)
}

// UnsubscriptionRejected is returned when the server refuses an unsubscribe
// request. The listener stays registered.
type UnsubscriptionRejected struct {
	Key  connection.Key
	Text string
}

func (e *UnsubscriptionRejected) Error() string {
	return fmt.Sprintf("unsubscribe %s rejected: %s", e.Key, e.Text)
}

// MatchFunc selects the event SubscribeOnce returns.
type MatchFunc func(ev model.Event) bool

// IsSnapshot is the default SubscribeOnce matcher.
func IsSnapshot(ev model.Event) bool {
	return ev.Event == model.EventSnapshot
}
