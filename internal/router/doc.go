// Package router multiplexes channel subscriptions over a Session.
//
// Each (channel, params) pair maps to at most one listener. Subscribe
// reserves the key, sends the request and activates the listener when the
// server acknowledges it; Unsubscribe removes the listener before the
// request goes out and puts it back if the server refuses. Buffer is the
// queue used by Stream and by the journal.
package router
