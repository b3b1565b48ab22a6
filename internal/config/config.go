package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	API           APIConfig           `yaml:"api"`
	Session       SessionConfig       `yaml:"session"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Journal       JournalConfig       `yaml:"journal"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

// APIConfig holds exchange WebSocket settings.
type APIConfig struct {
	WSURL            string        `yaml:"ws_url"`
	Origin           string        `yaml:"origin"`     // Origin header sent on the handshake
	Token            string        `yaml:"token"`      // API secret; prefer ${VAR} or token_path
	TokenPath        string        `yaml:"token_path"` // File holding the API secret
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
}

// SessionConfig holds request/acknowledgement settings.
type SessionConfig struct {
	AckTimeout   time.Duration `yaml:"ack_timeout"`
	OrderTimeout time.Duration `yaml:"order_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// SubscriptionsConfig lists what the streamer subscribes to at startup.
type SubscriptionsConfig struct {
	Symbols     []string `yaml:"symbols"`
	Channels    []string `yaml:"channels"`    // Market data channels (heartbeat, ticker, l2, l3, prices, trades, symbols, balances)
	Granularity int      `yaml:"granularity"` // Candle size in seconds for the prices channel
	Trading     bool     `yaml:"trading"`     // Open a standing trading subscription
}

// JournalConfig holds the order-event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings. An empty File logs to stdout.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
