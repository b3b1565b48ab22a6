package connection

import (
	"testing"

	"github.com/rickgao/exchange-ws/internal/model"
)

func mustEvent(t *testing.T, raw string) model.Event {
	t.Helper()
	ev, err := model.ParseEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseEvent(%s): %v", raw, err)
	}
	return ev
}

func TestNewKey_SortsAndSkipsCredentials(t *testing.T) {
	k := NewKey(model.ChannelPrices, Params{
		"symbol":      "BTC-USD",
		"granularity": 60,
		"token":       "secret",
		"unused":      nil,
	})

	if got, want := k.String(), "prices?granularity=60&symbol=BTC-USD"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestKey_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{
			name: "same params different order",
			a:    NewKey(model.ChannelPrices, Params{"symbol": "BTC-USD", "granularity": 60}),
			b:    NewKey(model.ChannelPrices, Params{"granularity": 60, "symbol": "BTC-USD"}),
			want: true,
		},
		{
			name: "different symbol",
			a:    NewKey(model.ChannelTicker, Params{"symbol": "BTC-USD"}),
			b:    NewKey(model.ChannelTicker, Params{"symbol": "ETH-USD"}),
			want: false,
		},
		{
			name: "different channel",
			a:    NewKey(model.ChannelL2, Params{"symbol": "BTC-USD"}),
			b:    NewKey(model.ChannelL3, Params{"symbol": "BTC-USD"}),
			want: false,
		},
		{
			name: "token ignored",
			a:    NewKey(model.ChannelTrading, Params{"token": "a"}),
			b:    NewKey(model.ChannelTrading, nil),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_Matches(t *testing.T) {
	key := NewKey(model.ChannelPrices, Params{"symbol": "BTC-USD", "granularity": 60})

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"same params", `{"channel":"prices","event":"updated","symbol":"BTC-USD","granularity":60}`, true},
		{"param omitted", `{"channel":"prices","event":"updated","symbol":"BTC-USD"}`, true},
		{"other symbol", `{"channel":"prices","event":"updated","symbol":"ETH-USD","granularity":60}`, false},
		{"other granularity", `{"channel":"prices","event":"updated","symbol":"BTC-USD","granularity":300}`, false},
		{"other channel", `{"channel":"ticker","event":"updated","symbol":"BTC-USD"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := key.Matches(mustEvent(t, tt.raw)); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListenerRegistry(t *testing.T) {
	r := NewListenerRegistry()
	btc := NewKey(model.ChannelTicker, Params{"symbol": "BTC-USD"})
	eth := NewKey(model.ChannelTicker, Params{"symbol": "ETH-USD"})

	var got []string
	record := func(name string) Handler {
		return func(model.Event) { got = append(got, name) }
	}

	if !r.Add(&Listener{Key: btc, Handler: record("btc"), active: true}) {
		t.Fatal("first Add should succeed")
	}
	if r.Add(&Listener{Key: btc, Handler: record("dup")}) {
		t.Fatal("duplicate Add should fail")
	}
	r.Add(&Listener{Key: eth, Handler: record("eth")})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if keys := r.Keys(); !keys[0].Equal(btc) || !keys[1].Equal(eth) {
		t.Errorf("Keys() not in registration order: %v", keys)
	}

	for _, h := range r.Routes(mustEvent(t, `{"channel":"ticker","event":"snapshot","symbol":"BTC-USD"}`)) {
		h(model.Event{})
	}
	// Inactive listeners receive nothing.
	if len(r.Routes(mustEvent(t, `{"channel":"ticker","event":"snapshot","symbol":"ETH-USD"}`))) != 0 {
		t.Error("inactive listener should not be routed to")
	}
	if len(got) != 1 || got[0] != "btc" {
		t.Errorf("routed to %v, want [btc]", got)
	}

	if _, ok := r.Remove(btc); !ok {
		t.Error("Remove should find btc")
	}
	if _, ok := r.Remove(btc); ok {
		t.Error("second Remove should find nothing")
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
}
