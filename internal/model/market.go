package model

import "github.com/shopspring/decimal"

// Ticker is the payload of a ticker snapshot or update.
type Ticker struct {
	Symbol         string          `json:"symbol"`
	Price24h       decimal.Decimal `json:"price_24h"`
	Volume24h      decimal.Decimal `json:"volume_24h"`
	LastTradePrice decimal.Decimal `json:"last_trade_price"`
}

// Symbol describes a tradeable market as reported on the symbols channel.
type Symbol struct {
	Symbol                 string          `json:"symbol"`
	ID                     int64           `json:"id"`
	Status                 string          `json:"status"`
	BaseCurrency           string          `json:"base_currency"`
	BaseCurrencyScale      int             `json:"base_currency_scale"`
	CounterCurrency        string          `json:"counter_currency"`
	CounterCurrencyScale   int             `json:"counter_currency_scale"`
	MinPriceIncrement      int64           `json:"min_price_increment"`
	MinPriceIncrementScale int             `json:"min_price_increment_scale"`
	MinOrderSize           int64           `json:"min_order_size"`
	MinOrderSizeScale      int             `json:"min_order_size_scale"`
	MaxOrderSize           int64           `json:"max_order_size"`
	MaxOrderSizeScale      int             `json:"max_order_size_scale"`
	LotSize                int64           `json:"lot_size"`
	LotSizeScale           int             `json:"lot_size_scale"`
	AuctionPrice           decimal.Decimal `json:"auction_price"`
	AuctionSize            decimal.Decimal `json:"auction_size"`
	AuctionTime            string          `json:"auction_time"`
	Imbalance              decimal.Decimal `json:"imbalance"`
}

// Balance is a single currency balance.
type Balance struct {
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	Available      decimal.Decimal `json:"available"`
	BalanceLocal   decimal.Decimal `json:"balance_local"`
	AvailableLocal decimal.Decimal `json:"available_local"`
	Rate           decimal.Decimal `json:"rate"`
}

// Balances is the payload of a balances snapshot.
type Balances struct {
	Balances            []Balance       `json:"balances"`
	TotalAvailableLocal decimal.Decimal `json:"total_available_local"`
	TotalBalanceLocal   decimal.Decimal `json:"total_balance_local"`
}

// PriceLevel is one level of an l2 book side.
type PriceLevel struct {
	Px  decimal.Decimal `json:"px"`
	Qty decimal.Decimal `json:"qty"`
	Num int             `json:"num"`
}

// OrderBook is the payload of an l2 snapshot or update.
type OrderBook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// SymbolsSnapshot is the payload of a symbols snapshot, keyed by symbol.
type SymbolsSnapshot struct {
	Symbols map[string]Symbol `json:"symbols"`
}
