package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/exchange-ws/internal/config"
	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/exchange"
	"github.com/rickgao/exchange-ws/internal/model"
)

// maxConcurrentSubscribes bounds the subscribe requests in flight at once.
const maxConcurrentSubscribes = 8

// subscriptionPlan turns the subscriptions config into client calls.
type subscriptionPlan struct {
	cfg    config.SubscriptionsConfig
	logger *slog.Logger
}

// subscribe issues every configured subscription concurrently. The first
// failure cancels the rest; subscriptions that already succeeded stay active.
func (p subscriptionPlan) subscribe(ctx context.Context, c *exchange.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSubscribes)

	for _, name := range p.cfg.Channels {
		ch := model.Channel(name)
		switch ch {
		case model.ChannelHeartbeat:
			g.Go(func() error { return wrap(ch, "", c.SubscribeHeartbeat(gctx, p.handler())) })
		case model.ChannelSymbols:
			g.Go(func() error { return wrap(ch, "", c.SubscribeSymbols(gctx, p.handler())) })
		case model.ChannelBalances:
			g.Go(func() error { return wrap(ch, "", c.SubscribeBalances(gctx, p.handler())) })
		default:
			for _, symbol := range p.cfg.Symbols {
				symbol := symbol
				g.Go(func() error { return wrap(ch, symbol, p.subscribeSymbol(gctx, c, ch, symbol)) })
			}
		}
	}

	if p.cfg.Trading {
		g.Go(func() error { return wrap(model.ChannelTrading, "", c.SubscribeTrading(gctx, p.handler())) })
	}

	return g.Wait()
}

func (p subscriptionPlan) subscribeSymbol(ctx context.Context, c *exchange.Client, ch model.Channel, symbol string) error {
	h := p.handler()
	switch ch {
	case model.ChannelTicker:
		return c.SubscribeTicker(ctx, symbol, h)
	case model.ChannelL2:
		return c.SubscribeL2(ctx, symbol, h)
	case model.ChannelL3:
		return c.SubscribeL3(ctx, symbol, h)
	case model.ChannelPrices:
		return c.SubscribePrices(ctx, symbol, p.cfg.Granularity, h)
	case model.ChannelTrades:
		return c.SubscribeTrades(ctx, symbol, h)
	}
	return fmt.Errorf("%w: %s", connection.ErrInvalidChannel, ch)
}

func (p subscriptionPlan) handler() connection.Handler {
	return func(ev model.Event) {
		symbol, _ := ev.Field("symbol")
		p.logger.Info("event",
			"channel", ev.Channel,
			"event", ev.Event,
			"seqnum", ev.Seqnum,
			"symbol", symbol,
		)
		p.logger.Debug("payload", "channel", ev.Channel, "raw", string(ev.Raw))
	}
}

func wrap(ch model.Channel, symbol string, err error) error {
	if err == nil {
		return nil
	}
	if symbol == "" {
		return fmt.Errorf("%s: %w", ch, err)
	}
	return fmt.Errorf("%s %s: %w", ch, symbol, err)
}
