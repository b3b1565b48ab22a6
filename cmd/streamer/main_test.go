package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/exchange-ws/internal/config"
	"github.com/rickgao/exchange-ws/internal/conntest"
	"github.com/rickgao/exchange-ws/internal/exchange"
	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/model"
)

func newTestClient(t *testing.T) (*exchange.Client, *conntest.Server) {
	t.Helper()
	srv := conntest.NewServer()
	cfg := exchange.DefaultConfig()
	cfg.Session.AckTimeout = 500 * time.Millisecond
	c := exchange.New(srv.Dial, cfg, nil, nil)
	c.SetToken("secret")
	t.Cleanup(c.Flush)
	return c, srv
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscriptionPlan(t *testing.T) {
	c, srv := newTestClient(t)

	plan := subscriptionPlan{
		cfg: config.SubscriptionsConfig{
			Symbols:     []string{"BTC-USD", "ETH-USD"},
			Channels:    []string{"heartbeat", "ticker", "prices"},
			Granularity: 300,
			Trading:     true,
		},
		logger: discardLogger(),
	}

	if err := plan.subscribe(context.Background(), c); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	tests := []struct {
		channel string
		want    int
	}{
		{"auth", 1},
		{"heartbeat", 1},
		{"ticker", 2},
		{"prices", 2},
		{"trading", 1},
	}
	for _, tt := range tests {
		if got := srv.Count("subscribe", tt.channel); got != tt.want {
			t.Errorf("subscribe %s sent %d times, want %d", tt.channel, got, tt.want)
		}
	}

	if n := len(c.Session().Listeners()); n != 6 {
		t.Errorf("listeners = %d, want 6", n)
	}
	if !c.IsTradingSubscribed() {
		t.Error("trading should be subscribed")
	}
}

func TestSubscriptionPlan_RejectionFails(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Reject("l3", "Channel unavailable")

	plan := subscriptionPlan{
		cfg: config.SubscriptionsConfig{
			Symbols:     []string{"BTC-USD"},
			Channels:    []string{"l3"},
			Granularity: 60,
		},
		logger: discardLogger(),
	}

	if err := plan.subscribe(context.Background(), c); err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestHealthHandler(t *testing.T) {
	c, _ := newTestClient(t)
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	h := newHTTPHandler(c, "/metrics", reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before connect = %d, want 503", rec.Code)
	}

	if err := c.SubscribeHeartbeat(context.Background(), func(model.Event) {}); err != nil {
		t.Fatalf("SubscribeHeartbeat: %v", err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health healthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !health.Connected || len(health.Subscriptions) != 1 {
		t.Errorf("health = %+v", health)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClientConfig(t *testing.T) {
	cfg := &config.StreamerConfig{}
	cfg.API.WSURL = "wss://ws.example.test/v1/ws"
	cfg.API.Origin = "https://exchange.example.test"
	cfg.API.PingInterval = 15 * time.Second
	cfg.Session.BufferSize = 42

	cc := clientConfig(cfg)
	if cc.URL != cfg.API.WSURL || cc.BufferSize != 42 || cc.PingInterval != 15*time.Second {
		t.Errorf("clientConfig = %+v", cc)
	}
	if cc.Header.Get("Origin") != cfg.API.Origin {
		t.Errorf("Origin header = %q", cc.Header.Get("Origin"))
	}
	if cc.Header.Get("User-Agent") == "" {
		t.Error("User-Agent header not set")
	}
}
