package trading

import (
	"github.com/rickgao/exchange-ws/internal/model"
)

// matcher consumes trading events until it resolves. observe is only ever
// called from the dispatch goroutine, so implementations keep unguarded state.
type matcher interface {
	observe(ev model.Event) (done bool, err error)
}

// createMatcher waits for the first update of a new order, by clOrdID.
type createMatcher struct {
	clOrdID string
	order   *model.Order
}

func (m *createMatcher) observe(ev model.Event) (bool, error) {
	switch ev.Event {
	case model.EventUpdated:
		var o model.Order
		if err := ev.Decode(&o); err != nil || o.ClOrdID != m.clOrdID {
			return false, nil
		}
		m.order = &o
		if o.OrdStatus == model.OrderStatusRejected {
			return true, &OrderRejected{ClOrdID: o.ClOrdID, OrderID: o.OrderID, Text: o.Text}
		}
		return true, nil

	case model.EventRejected:
		if id, ok := ev.Field("clOrdID"); ok && id != m.clOrdID {
			return false, nil
		}
		return true, &OrderRejected{ClOrdID: m.clOrdID, Text: ev.Text}
	}
	return false, nil
}

// cancelMatcher waits for an order to be reported cancelled. Other terminal
// statuses do not satisfy it.
type cancelMatcher struct {
	orderID string
	order   *model.Order
}

func (m *cancelMatcher) observe(ev model.Event) (bool, error) {
	switch ev.Event {
	case model.EventUpdated:
		var o model.Order
		if err := ev.Decode(&o); err != nil || o.OrderID != m.orderID {
			return false, nil
		}
		if o.OrdStatus != model.OrderStatusCancelled {
			return false, nil
		}
		m.order = &o
		return true, nil

	case model.EventRejected:
		if id, ok := ev.Field("orderID"); ok && id != m.orderID {
			return false, nil
		}
		return true, &OrderRejected{OrderID: m.orderID, Text: ev.Text}
	}
	return false, nil
}

// cancelAllMatcher tracks a set of orders until every one has been reported
// cancelled.
type cancelAllMatcher struct {
	orders  []model.Order
	pending map[string]int // orderID -> index into orders
}

func newCancelAllMatcher(orders []model.Order) *cancelAllMatcher {
	m := &cancelAllMatcher{
		orders:  orders,
		pending: make(map[string]int, len(orders)),
	}
	for i, o := range orders {
		m.pending[o.OrderID] = i
	}
	return m
}

func (m *cancelAllMatcher) observe(ev model.Event) (bool, error) {
	switch ev.Event {
	case model.EventUpdated:
		var o model.Order
		if err := ev.Decode(&o); err != nil {
			return false, nil
		}
		i, tracked := m.pending[o.OrderID]
		if !tracked || o.OrdStatus != model.OrderStatusCancelled {
			return false, nil
		}
		m.orders[i] = o
		delete(m.pending, o.OrderID)
		return len(m.pending) == 0, nil

	case model.EventRejected:
		id, ok := ev.Field("orderID")
		if ok {
			if _, tracked := m.pending[id]; !tracked {
				return false, nil
			}
		}
		return true, &OrderRejected{OrderID: id, Text: ev.Text}
	}
	return false, nil
}
