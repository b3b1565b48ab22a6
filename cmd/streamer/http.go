package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/exchange-ws/internal/exchange"
	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/version"
)

type healthStatus struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	Connected     bool     `json:"connected"`
	Authenticated bool     `json:"authenticated"`
	TradingActive bool     `json:"trading_active"`
	Subscriptions []string `json:"subscriptions"`
}

func newHTTPHandler(client *exchange.Client, metricsPath string, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics.Handler(g))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		session := client.Session()
		keys := session.Listeners()
		health := healthStatus{
			Status:        "healthy",
			Version:       version.String(),
			Connected:     session.IsConnected(),
			Authenticated: session.IsAuthenticated(),
			TradingActive: client.IsTradingSubscribed(),
			Subscriptions: make([]string, 0, len(keys)),
		}
		for _, k := range keys {
			health.Subscriptions = append(health.Subscriptions, k.String())
		}

		if !health.Connected {
			health.Status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
