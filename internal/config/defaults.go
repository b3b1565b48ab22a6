package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL            = "wss://ws.blockchain.info/mercury-gateway/v1/ws"
	DefaultOrigin           = "https://exchange.blockchain.com"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultAckTimeout       = 10 * time.Second
	DefaultOrderTimeout     = 30 * time.Second
	DefaultBufferSize       = 10000
	DefaultGranularity      = 60
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultLogMaxSizeMB     = 100
	DefaultLogMaxBackups    = 3
	DefaultLogMaxAgeDays    = 28
)

func (c *StreamerConfig) applyDefaults() {
	// API defaults
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Origin == "" {
		c.API.Origin = DefaultOrigin
	}
	if c.API.HandshakeTimeout == 0 {
		c.API.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = DefaultWriteTimeout
	}
	if c.API.PingInterval == 0 {
		c.API.PingInterval = DefaultPingInterval
	}
	if c.API.PingTimeout == 0 {
		c.API.PingTimeout = DefaultPingTimeout
	}

	// Session defaults
	if c.Session.AckTimeout == 0 {
		c.Session.AckTimeout = DefaultAckTimeout
	}
	if c.Session.OrderTimeout == 0 {
		c.Session.OrderTimeout = DefaultOrderTimeout
	}
	if c.Session.BufferSize == 0 {
		c.Session.BufferSize = DefaultBufferSize
	}

	if c.Subscriptions.Granularity == 0 {
		c.Subscriptions.Granularity = DefaultGranularity
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	applyDBDefaults(&c.Journal.Database)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
