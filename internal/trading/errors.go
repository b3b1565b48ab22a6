package trading

import (
	"errors"
	"fmt"

	"github.com/rickgao/exchange-ws/internal/connection"
)

// Errors
var (
	ErrAlreadySubscribed = errors.New("trading: already subscribed")
	ErrNotSubscribed     = connection.ErrNotSubscribed
	ErrAuthRequired      = errors.New("trading: authentication token required")
)

// OrderRejected is returned when the venue refuses an order command.
type OrderRejected struct {
	ClOrdID string
	OrderID string
	Text    string
}

func (e *OrderRejected) Error() string {
	switch {
	case e.OrderID != "":
		return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Text)
	case e.ClOrdID != "":
		return fmt.Sprintf("order %s rejected: %s", e.ClOrdID, e.Text)
	}
	return "order rejected: " + e.Text
}
