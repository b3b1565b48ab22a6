package model

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusRejected  OrderStatus = "rejected"
)

// IsTerminal reports whether no further updates are expected for the order.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the order type.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stopLimit"
)

// TimeInForce controls how long an order stays on the book.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceGTD TimeInForce = "GTD"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceIOC TimeInForce = "IOC"
)

// maxClOrdIDLen is the longest client order id the venue accepts.
const maxClOrdIDLen = 20

// NewClOrdID returns a random client order id.
func NewClOrdID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:maxClOrdIDLen]
}

// Order is an order as reported on the trading channel.
type Order struct {
	OrderID      string          `json:"orderID"`
	ClOrdID      string          `json:"clOrdID"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	OrdType      OrderType       `json:"ordType"`
	OrdStatus    OrderStatus     `json:"ordStatus"`
	TimeInForce  TimeInForce     `json:"timeInForce,omitempty"`
	OrderQty     decimal.Decimal `json:"orderQty"`
	LeavesQty    decimal.Decimal `json:"leavesQty"`
	CumQty       decimal.Decimal `json:"cumQty"`
	AvgPx        decimal.Decimal `json:"avgPx"`
	Price        decimal.Decimal `json:"price"`
	StopPx       decimal.Decimal `json:"stopPx"`
	LastPx       decimal.Decimal `json:"lastPx"`
	LastShares   decimal.Decimal `json:"lastShares"`
	ExecType     string          `json:"execType,omitempty"`
	ExecID       string          `json:"execID,omitempty"`
	TradeID      string          `json:"tradeId,omitempty"`
	TransactTime string          `json:"transactTime,omitempty"`
	Text         string          `json:"text,omitempty"`
}

// OrdersSnapshot is the payload of a trading snapshot event.
type OrdersSnapshot struct {
	Orders []Order `json:"orders"`
}

// OrderRequest describes a new order. Zero-valued optional fields are omitted
// from the wire frame.
type OrderRequest struct {
	ClOrdID     string
	Symbol      string
	Side        Side
	OrdType     OrderType
	TimeInForce TimeInForce
	OrderQty    decimal.Decimal
	Price       decimal.Decimal
	StopPx      decimal.Decimal
	MinQty      decimal.Decimal
	ExpireDate  int // yyyyMMdd, GTD only
	ExecInst    string
}

// Frame builds the NewOrderSingle frame for the request.
func (r OrderRequest) Frame() Frame {
	f := NewFrame(ActionNewOrderSingle, ChannelTrading)
	f["clOrdID"] = r.ClOrdID
	f["symbol"] = r.Symbol
	f["side"] = r.Side
	f["ordType"] = r.OrdType
	f["orderQty"] = decimalNumber(r.OrderQty)
	if r.TimeInForce != "" {
		f["timeInForce"] = r.TimeInForce
	}
	if !r.Price.IsZero() {
		f["price"] = decimalNumber(r.Price)
	}
	if !r.StopPx.IsZero() {
		f["stopPx"] = decimalNumber(r.StopPx)
	}
	if !r.MinQty.IsZero() {
		f["minQty"] = decimalNumber(r.MinQty)
	}
	if r.ExpireDate != 0 {
		f["expireDate"] = r.ExpireDate
	}
	if r.ExecInst != "" {
		f["execInst"] = r.ExecInst
	}
	return f
}

// CancelFrame builds the CancelOrderRequest frame for orderID.
func CancelFrame(orderID string) Frame {
	f := NewFrame(ActionCancelOrderRequest, ChannelTrading)
	f["orderID"] = orderID
	return f
}

// decimalNumber renders d as an unquoted JSON number.
func decimalNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
