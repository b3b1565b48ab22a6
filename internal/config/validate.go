package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rickgao/exchange-ws/internal/model"
)

var validGranularities = map[int]bool{60: true, 300: true, 900: true, 3600: true, 21600: true, 86400: true}

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	u, err := url.Parse(c.API.WSURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("api.ws_url must be a ws:// or wss:// URL, got %q", c.API.WSURL)
	}
	if c.API.PingTimeout > 0 && c.API.PingTimeout < c.API.PingInterval {
		return errors.New("api.ping_timeout must be >= api.ping_interval")
	}

	if c.Session.AckTimeout < 0 || c.Session.OrderTimeout < 0 {
		return errors.New("session timeouts must be >= 0")
	}
	if c.Session.BufferSize < 1 {
		return errors.New("session.buffer_size must be >= 1")
	}

	if err := c.Subscriptions.validate(c.hasToken()); err != nil {
		return err
	}

	if c.Journal.Enabled {
		if !c.Subscriptions.Trading {
			return errors.New("journal.enabled requires subscriptions.trading")
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (c *StreamerConfig) hasToken() bool {
	return c.API.Token != "" || c.API.TokenPath != ""
}

func (s *SubscriptionsConfig) validate(hasToken bool) error {
	needsSymbols := false
	for _, name := range s.Channels {
		ch := model.Channel(name)
		switch {
		case !ch.IsValid():
			return fmt.Errorf("subscriptions.channels: unknown channel %q", name)
		case ch == model.ChannelAuth || ch == model.ChannelTrading:
			return fmt.Errorf("subscriptions.channels: %q cannot be listed; use subscriptions.trading for trading", name)
		case ch.RequiresAuth() && !hasToken:
			return fmt.Errorf("subscriptions.channels: %q requires api.token or api.token_path", name)
		}
		switch ch {
		case model.ChannelTicker, model.ChannelL2, model.ChannelL3, model.ChannelPrices, model.ChannelTrades:
			needsSymbols = true
		}
	}

	if needsSymbols && len(s.Symbols) == 0 {
		return errors.New("subscriptions.symbols is required for per-symbol channels")
	}
	if !validGranularities[s.Granularity] {
		return fmt.Errorf("subscriptions.granularity must be one of 60, 300, 900, 3600, 21600, 86400, got %d", s.Granularity)
	}
	if s.Trading && !hasToken {
		return errors.New("subscriptions.trading requires api.token or api.token_path")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
