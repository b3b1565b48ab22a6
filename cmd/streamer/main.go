// streamer connects to the exchange WebSocket API, subscribes to the
// configured channels and logs every event until interrupted.
// Usage: go run ./cmd/streamer --config configs/streamer.example.yaml
//
// Environment variables referenced from the config (for example
// ${EXCHANGE_API_TOKEN}) may be placed in a .env file next to the binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/exchange-ws/internal/auth"
	"github.com/rickgao/exchange-ws/internal/config"
	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/database"
	"github.com/rickgao/exchange-ws/internal/exchange"
	"github.com/rickgao/exchange-ws/internal/journal"
	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.String(),
		"config", *configPath,
		"ws_url", cfg.API.WSURL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("streamer failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.StreamerConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var token string
	if cfg.API.Token != "" || cfg.API.TokenPath != "" {
		t, err := auth.LoadToken(cfg.API.Token, cfg.API.TokenPath)
		if err != nil {
			return fmt.Errorf("load token: %w", err)
		}
		token = t
		logger.Info("using api token", "token", auth.Mask(token))
	}

	lost := make(chan error, 1)
	exCfg := exchange.DefaultConfig()
	exCfg.Session.AckTimeout = cfg.Session.AckTimeout
	exCfg.Session.OnDisconnect = func(err error) {
		select {
		case lost <- err:
		default:
		}
	}
	exCfg.Trading.OrderTimeout = cfg.Session.OrderTimeout

	var writer *journal.Writer
	if cfg.Journal.Enabled {
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, m, logger.With("component", "journal"))
		writer.Start(ctx)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := writer.Stop(stopCtx); err != nil {
				logger.Warn("journal stop", "error", err)
			}
		}()
		exCfg.Trading.Observer = writer.Record
	}

	dial := connection.WebSocketDialer(clientConfig(cfg), logger.With("component", "client"))
	client := exchange.New(dial, exCfg, m, logger)
	client.SetToken(token)
	defer client.Flush()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHTTPHandler(client, cfg.Metrics.Path, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	plan := subscriptionPlan{cfg: cfg.Subscriptions, logger: logger}
	if err := plan.subscribe(ctx, client); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Info("subscriptions active", "listeners", len(client.Session().Listeners()))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-lost:
		// Subscriptions do not survive a lost connection; leave restarts to the supervisor.
		return fmt.Errorf("connection lost: %w", err)
	}
}

func clientConfig(cfg *config.StreamerConfig) connection.ClientConfig {
	cc := connection.DefaultClientConfig()
	cc.URL = cfg.API.WSURL
	cc.Header = http.Header{}
	cc.Header.Set("Origin", cfg.API.Origin)
	cc.Header.Set("User-Agent", version.UserAgent())
	cc.HandshakeTimeout = cfg.API.HandshakeTimeout
	cc.WriteTimeout = cfg.API.WriteTimeout
	cc.PingInterval = cfg.API.PingInterval
	cc.PingTimeout = cfg.API.PingTimeout
	cc.BufferSize = cfg.Session.BufferSize
	return cc
}
