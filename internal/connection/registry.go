package connection

import "github.com/rickgao/exchange-ws/internal/model"

// Handler receives every inbound event routed to a Listener. Handlers run on
// the session's dispatch goroutine and must not block on operations that
// wait for further inbound frames.
type Handler func(ev model.Event)

// Listener binds a Key to the caller's Handler.
type Listener struct {
	Key     Key
	Handler Handler

	active bool   // set once the server acknowledged the subscription
	gen    uint64 // session generation the listener was registered under
}

// Active reports whether frames are currently routed to the listener.
func (l *Listener) Active() bool {
	return l.active
}

// ListenerRegistry is an insertion-ordered set of listeners, at most one per
// key. It is not safe for concurrent use; the Session guards it.
type ListenerRegistry struct {
	order []string
	byKey map[string]*Listener
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{
		byKey: make(map[string]*Listener),
	}
}

// Add registers l. It returns false, leaving the registry untouched, when a
// listener already exists for l.Key.
func (r *ListenerRegistry) Add(l *Listener) bool {
	id := l.Key.String()
	if _, exists := r.byKey[id]; exists {
		return false
	}
	r.byKey[id] = l
	r.order = append(r.order, id)
	return true
}

// Get returns the listener registered for key.
func (r *ListenerRegistry) Get(key Key) (*Listener, bool) {
	l, ok := r.byKey[key.String()]
	return l, ok
}

// Remove deletes the listener for key and returns it.
func (r *ListenerRegistry) Remove(key Key) (*Listener, bool) {
	id := key.String()
	l, ok := r.byKey[id]
	if !ok {
		return nil, false
	}
	delete(r.byKey, id)
	for i, k := range r.order {
		if k == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return l, true
}

// Len returns the number of registered listeners.
func (r *ListenerRegistry) Len() int {
	return len(r.order)
}

// Keys returns the registered keys in registration order.
func (r *ListenerRegistry) Keys() []Key {
	keys := make([]Key, 0, len(r.order))
	for _, id := range r.order {
		keys = append(keys, r.byKey[id].Key)
	}
	return keys
}

// Routes returns the handlers of active listeners that ev belongs to.
func (r *ListenerRegistry) Routes(ev model.Event) []Handler {
	var handlers []Handler
	for _, id := range r.order {
		l := r.byKey[id]
		if l.active && l.Key.Matches(ev) {
			handlers = append(handlers, l.Handler)
		}
	}
	return handlers
}

// Clear drops every listener.
func (r *ListenerRegistry) Clear() {
	r.order = nil
	r.byKey = make(map[string]*Listener)
}
