// Package exchange is the public surface of the adapter: typed subscribe and
// unsubscribe operations per channel, one-shot snapshot helpers and the order
// operations, all sharing one Session.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/metrics"
	"github.com/rickgao/exchange-ws/internal/model"
	"github.com/rickgao/exchange-ws/internal/router"
	"github.com/rickgao/exchange-ws/internal/trading"
)

// Errors
var (
	ErrAuthRequired       = trading.ErrAuthRequired
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInvalidGranularity = errors.New("invalid price granularity")
)

// Granularities accepted by the prices channel, in seconds.
var Granularities = []int{60, 300, 900, 3600, 21600, 86400}

// Config configures a Client.
type Config struct {
	Session connection.SessionConfig
	Trading trading.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Session: connection.DefaultSessionConfig(),
		Trading: trading.DefaultConfig(),
	}
}

// Client owns a Session and the components built on it.
type Client struct {
	session *connection.Session
	mux     *router.Multiplexer
	trader  *trading.Trader
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a Client that connects through dial on first use.
func New(dial connection.Dialer, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{logger: logger}
	c.session = connection.NewSession(cfg.Session, dial, m, logger.With("component", "session"))
	c.mux = router.NewMultiplexer(c.session, m, logger.With("component", "multiplexer"))
	c.trader = trading.New(c.mux, c.Token, cfg.Trading, logger.With("component", "trading"))
	return c
}

// SetToken sets the API token used by authenticated operations.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current API token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Session returns the underlying session.
func (c *Client) Session() *connection.Session { return c.session }

// Multiplexer returns the channel multiplexer.
func (c *Client) Multiplexer() *router.Multiplexer { return c.mux }

// Flush drops the connection, every subscription and the authentication
// state. Nothing is sent to the server.
func (c *Client) Flush() {
	c.session.Flush()
	c.trader.Reset()
}

func (c *Client) requireToken() (string, error) {
	token := c.Token()
	if token == "" {
		return "", ErrAuthRequired
	}
	return token, nil
}

func symbolParams(symbol string) connection.Params {
	return connection.Params{"symbol": symbol}
}

func priceParams(symbol string, granularity int) (connection.Params, error) {
	for _, g := range Granularities {
		if g == granularity {
			return connection.Params{"symbol": symbol, "granularity": granularity}, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidGranularity, granularity)
}

// SubscribeHeartbeat subscribes to the heartbeat channel.
func (c *Client) SubscribeHeartbeat(ctx context.Context, h connection.Handler) error {
	return c.mux.Subscribe(ctx, model.ChannelHeartbeat, nil, h, "")
}

// UnsubscribeHeartbeat unsubscribes from the heartbeat channel.
func (c *Client) UnsubscribeHeartbeat(ctx context.Context) error {
	return c.mux.Unsubscribe(ctx, model.ChannelHeartbeat, nil)
}

// SubscribeTicker subscribes to ticker events for symbol.
func (c *Client) SubscribeTicker(ctx context.Context, symbol string, h connection.Handler) error {
	return c.mux.Subscribe(ctx, model.ChannelTicker, symbolParams(symbol), h, "")
}

// UnsubscribeTicker unsubscribes from ticker events for symbol.
func (c *Client) UnsubscribeTicker(ctx context.Context, symbol string) error {
	return c.mux.Unsubscribe(ctx, model.ChannelTicker, symbolParams(symbol))
}

// SubscribeL2 subscribes to the aggregated order book for symbol.
func (c *Client) SubscribeL2(ctx context.Context, symbol string, h connection.Handler) error {
	return c.mux.Subscribe(ctx, model.ChannelL2, symbolParams(symbol), h, "")
}

// UnsubscribeL2 unsubscribes from the aggregated order book for symbol.
func (c *Client) UnsubscribeL2(ctx context.Context, symbol string) error {
	return c.mux.Unsubscribe(ctx, model.ChannelL2, symbolParams(symbol))
}

// SubscribeL3 subscribes to the per-order book for symbol.
func (c *Client) SubscribeL3(ctx context.Context, symbol string, h connection.Handler) error {
	return c.mux.Subscribe(ctx, model.ChannelL3, symbolParams(symbol), h, "")
}

// UnsubscribeL3 unsubscribes from the per-order book for symbol.
func (c *Client) UnsubscribeL3(ctx context.Context, symbol string) error {
	return c.mux.Unsubscribe(ctx, model.ChannelL3, symbolParams(symbol))
}

// SubscribePrices subscribes to candles for symbol at granularity seconds.
func (c *Client) SubscribePrices(ctx context.Context, symbol string, granularity int, h connection.Handler) error {
	params, err := priceParams(symbol, granularity)
	if err != nil {
		return err
	}
	return c.mux.Subscribe(ctx, model.ChannelPrices, params, h, "")
}

// UnsubscribePrices unsubscribes from candles for symbol at granularity seconds.
func (c *Client) UnsubscribePrices(ctx context.Context, symbol string, granularity int) error {
	params, err := priceParams(symbol, granularity)
	if err != nil {
		return err
	}
	return c.mux.Unsubscribe(ctx, model.ChannelPrices, params)
}

// SubscribeTrades subscribes to public trades for symbol.
func (c *Client) SubscribeTrades(ctx context.Context, symbol string, h connection.Handler) error {
	return c.mux.Subscribe(ctx, model.ChannelTrades, symbolParams(symbol), h, "")
}

// UnsubscribeTrades unsubscribes from public trades for symbol.
func (c *Client) UnsubscribeTrades(ctx context.Context, symbol string) error {
	return c.mux.Unsubscribe(ctx, model.ChannelTrades, symbolParams(symbol))
}

// SubscribeSymbols subscribes to market reference data.
func (c *Client) SubscribeSymbols(ctx context.Context, h connection.Handler) error {
	return c.mux.Subscribe(ctx, model.ChannelSymbols, nil, h, "")
}

// UnsubscribeSymbols unsubscribes from market reference data.
func (c *Client) UnsubscribeSymbols(ctx context.Context) error {
	return c.mux.Unsubscribe(ctx, model.ChannelSymbols, nil)
}

// SubscribeBalances subscribes to account balances. Requires a token.
func (c *Client) SubscribeBalances(ctx context.Context, h connection.Handler) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	return c.mux.Subscribe(ctx, model.ChannelBalances, nil, h, token)
}

// UnsubscribeBalances unsubscribes from account balances.
func (c *Client) UnsubscribeBalances(ctx context.Context) error {
	return c.mux.Unsubscribe(ctx, model.ChannelBalances, nil)
}

// GetTicker returns the current ticker snapshot for symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	ev, err := c.mux.SubscribeOnce(ctx, model.ChannelTicker, symbolParams(symbol), "", nil)
	if ev.Event == "" {
		return nil, err
	}

	var t model.Ticker
	if derr := ev.Decode(&t); derr != nil {
		return nil, fmt.Errorf("decode ticker: %w", derr)
	}
	return &t, err
}

// GetMarket returns the reference data for symbol from the symbols snapshot.
func (c *Client) GetMarket(ctx context.Context, symbol string) (*model.Symbol, error) {
	ev, err := c.mux.SubscribeOnce(ctx, model.ChannelSymbols, nil, "", nil)
	if ev.Event == "" {
		return nil, err
	}

	var snap model.SymbolsSnapshot
	if derr := ev.Decode(&snap); derr != nil {
		return nil, fmt.Errorf("decode symbols: %w", derr)
	}
	s, ok := snap.Symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if s.Symbol == "" {
		s.Symbol = symbol
	}
	return &s, err
}

// GetBalances returns the current balances snapshot. Requires a token.
func (c *Client) GetBalances(ctx context.Context) (*model.Balances, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}

	ev, err := c.mux.SubscribeOnce(ctx, model.ChannelBalances, nil, token, nil)
	if ev.Event == "" {
		return nil, err
	}

	var b model.Balances
	if derr := ev.Decode(&b); derr != nil {
		return nil, fmt.Errorf("decode balances: %w", derr)
	}
	return &b, err
}

// SubscribeTrading opens a standing trading subscription. See trading.Trader.
func (c *Client) SubscribeTrading(ctx context.Context, h connection.Handler) error {
	return c.trader.SubscribeTrading(ctx, h)
}

// UnsubscribeTrading closes the standing trading subscription.
func (c *Client) UnsubscribeTrading(ctx context.Context) error {
	return c.trader.UnsubscribeTrading(ctx)
}

// IsTradingSubscribed reports whether a standing trading subscription is open.
func (c *Client) IsTradingSubscribed() bool {
	return c.trader.IsSubscribed()
}

// CreateOrder places an order. See trading.Trader.CreateOrder.
func (c *Client) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	return c.trader.CreateOrder(ctx, req)
}

// CancelOrder cancels an order. See trading.Trader.CancelOrder.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return c.trader.CancelOrder(ctx, orderID)
}

// CancelAllOrders cancels every live order.
func (c *Client) CancelAllOrders(ctx context.Context) ([]model.Order, error) {
	return c.trader.CancelAllOrders(ctx)
}

// GetOpenOrders returns the current orders snapshot.
func (c *Client) GetOpenOrders(ctx context.Context) ([]model.Order, error) {
	return c.trader.GetOpenOrders(ctx)
}
