package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected           = errors.New("not connected")
	ErrStaleConnection        = errors.New("connection stale (no ping)")
	ErrTimeout                = errors.New("operation timeout")
	ErrAlreadyClosed          = errors.New("already closed")
	ErrFlushed                = errors.New("session flushed")
	ErrDuplicateSubscription  = errors.New("already subscribed with these parameters")
	ErrNotSubscribed          = errors.New("not subscribed with these parameters")
	ErrInvalidChannel         = errors.New("invalid channel")
	ErrConnectionLost         = errors.New("connection lost")
	errClientWithoutTransport = errors.New("dialer returned nil client")
)

// ConnectionError reports a failure to establish (or keep) the connection.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports a failed write on an established connection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport write: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationRejected is returned when the server refuses the auth token.
type AuthenticationRejected struct {
	Text string
}

func (e *AuthenticationRejected) Error() string {
	return "authentication rejected: " + e.Text
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://ws.blockchain.info/mercury-gateway/v1/ws)
	Header           http.Header   // Extra handshake headers (Origin, User-Agent)
	HandshakeTimeout time.Duration // Dial handshake deadline
	PingInterval     time.Duration // Interval between keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       10000,
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	AckTimeout   time.Duration   // Max wait for subscribe/unsubscribe/auth acknowledgements (0 = wait forever)
	OnDisconnect func(err error) // Called after a lost connection has been discarded
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AckTimeout: 10 * time.Second,
	}
}
