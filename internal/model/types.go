package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Channel is a named logical stream multiplexed over the connection.
type Channel string

const (
	ChannelAuth      Channel = "auth"
	ChannelBalances  Channel = "balances"
	ChannelHeartbeat Channel = "heartbeat"
	ChannelL2        Channel = "l2"
	ChannelL3        Channel = "l3"
	ChannelPrices    Channel = "prices"
	ChannelSymbols   Channel = "symbols"
	ChannelTicker    Channel = "ticker"
	ChannelTrades    Channel = "trades"
	ChannelTrading   Channel = "trading"
)

// String returns the channel name.
func (c Channel) String() string {
	return string(c)
}

// IsValid reports whether c is one of the channels the venue serves.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelAuth, ChannelBalances, ChannelHeartbeat, ChannelL2, ChannelL3,
		ChannelPrices, ChannelSymbols, ChannelTicker, ChannelTrades, ChannelTrading:
		return true
	}
	return false
}

// RequiresAuth reports whether subscribing to c needs an authenticated connection.
func (c Channel) RequiresAuth() bool {
	return c == ChannelBalances || c == ChannelTrading
}

// Action is the verb of an outbound frame.
type Action string

const (
	ActionSubscribe          Action = "subscribe"
	ActionUnsubscribe        Action = "unsubscribe"
	ActionNewOrderSingle     Action = "NewOrderSingle"
	ActionCancelOrderRequest Action = "CancelOrderRequest"
)

// EventType is the kind of an inbound event.
type EventType string

const (
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventRejected     EventType = "rejected"
	EventSnapshot     EventType = "snapshot"
	EventUpdated      EventType = "updated"
)

// IsAck reports whether e acknowledges (or refuses) a subscribe/unsubscribe request.
func (e EventType) IsAck() bool {
	return e == EventSubscribed || e == EventUnsubscribed || e == EventRejected
}

// Frame is an outbound message.
type Frame map[string]any

// NewFrame creates a frame with the mandatory action and channel fields.
func NewFrame(action Action, channel Channel) Frame {
	return Frame{
		"action":  action,
		"channel": channel,
	}
}

// Action returns the frame's action.
func (f Frame) Action() Action {
	a, _ := f["action"].(Action)
	return a
}

// Channel returns the frame's channel.
func (f Frame) Channel() Channel {
	c, _ := f["channel"].(Channel)
	return c
}

// Event is an inbound message. Raw holds the complete frame so channel
// payloads can be decoded on demand.
type Event struct {
	Channel Channel   `json:"channel"`
	Event   EventType `json:"event"`
	Seqnum  int64     `json:"seqnum,omitempty"`
	Text    string    `json:"text,omitempty"`

	Raw    json.RawMessage            `json:"-"`
	fields map[string]json.RawMessage // every top-level field of Raw
}

// ParseEvent decodes an inbound frame.
func ParseEvent(data []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if ev.Channel == "" || ev.Event == "" {
		return Event{}, fmt.Errorf("frame missing channel or event: %s", truncate(data, 128))
	}

	ev.Raw = append(json.RawMessage(nil), data...)
	ev.fields = fields
	return ev, nil
}

// Field returns the string form of a top-level field. JSON strings are
// unquoted, numbers and other literals are returned verbatim.
func (e Event) Field(name string) (string, bool) {
	raw, ok := e.fields[name]
	if !ok {
		return "", false
	}
	if len(raw) > 0 && raw[0] == '"' {
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			return "", false
		}
		return s, true
	}
	return string(raw), true
}

// Decode unmarshals the complete frame into v.
func (e Event) Decode(v any) error {
	if len(e.Raw) == 0 {
		return fmt.Errorf("event %s/%s has no payload", e.Channel, e.Event)
	}
	return json.Unmarshal(e.Raw, v)
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
