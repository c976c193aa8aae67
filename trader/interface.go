// Package trader abstracts the exchange operations the bot needs: price and
// position lookups, order placement, and account setup. Implementations are
// the live Binance USDT-M futures client and a paper-trading simulator.
package trader

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide distinguishes the two legs in hedge mode. In one-way mode
// orders use PositionBoth.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionBoth  PositionSide = "BOTH"
)

// Position is a snapshot of the open position for one symbol. Size is signed:
// positive long, negative short, zero flat.
type Position struct {
	Symbol     string
	Size       float64
	EntryPrice float64
	MarkPrice  float64
	UnrealPnL  float64
	Leverage   int
}

// OrderRequest describes a limit or market order to place.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	PositionSide  PositionSide
	Quantity      float64
	Price         float64 // 0 for market orders
	ReduceOnly    bool
	ClientOrderID string
	// TakeProfitPrice, when set, attaches a reduce-only TAKE_PROFIT_MARKET
	// order at this price alongside the entry order.
	TakeProfitPrice float64
	// StopLossPrice, when set, attaches a reduce-only STOP_MARKET order.
	StopLossPrice float64
}

// OrderResult reports the exchange's acknowledgement of a placed order.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        string
	Price         float64
	Quantity      float64
	FilledQty     float64
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Trader is the unified exchange interface all strategy code depends on.
type Trader interface {
	// GetMarketPrice returns the latest price for symbol.
	GetMarketPrice(symbol string) (float64, error)

	// GetPosition returns the current position for symbol. A flat position
	// is returned with Size == 0, never a nil pointer.
	GetPosition(symbol string) (*Position, error)

	// PlaceOrder submits the order and any attached TP/SL companions.
	PlaceOrder(req *OrderRequest) (*OrderResult, error)

	// ClosePosition market-closes up to qty of the open position for
	// symbol. qty <= 0 closes the whole position.
	ClosePosition(symbol string, qty float64) error

	// CancelAllOrders cancels every open order for symbol.
	CancelAllOrders(symbol string) error

	// SetLeverage sets the leverage for symbol.
	SetLeverage(symbol string, leverage int) error

	// SetPositionMode selects hedge (dual) or one-way position mode for
	// the whole account.
	SetPositionMode(dualSide bool) error

	// GetKlines fetches up to limit recent candles for symbol at the
	// given interval (e.g. "15m").
	GetKlines(symbol string, interval string, limit int) ([]Kline, error)
}
