package bot

import (
	"fmt"

	"gridscalper/trader"
)

// mockTrader is an in-memory Trader that records every call and lets tests
// script the position snapshot and failure behavior.
type mockTrader struct {
	price    float64
	position trader.Position

	placedOrders   []trader.OrderRequest
	closedQty      []float64
	cancelAllCalls int

	failPlace  bool
	failClose  bool
	failCancel bool
}

func newMockTrader() *mockTrader {
	return &mockTrader{price: 65000}
}

func (m *mockTrader) GetMarketPrice(symbol string) (float64, error) {
	return m.price, nil
}

func (m *mockTrader) GetPosition(symbol string) (*trader.Position, error) {
	pos := m.position
	pos.Symbol = symbol
	return &pos, nil
}

func (m *mockTrader) PlaceOrder(req *trader.OrderRequest) (*trader.OrderResult, error) {
	if m.failPlace {
		return nil, fmt.Errorf("mock: order rejected")
	}
	m.placedOrders = append(m.placedOrders, *req)
	return &trader.OrderResult{
		OrderID:  int64(len(m.placedOrders)),
		Symbol:   req.Symbol,
		Status:   "NEW",
		Price:    req.Price,
		Quantity: req.Quantity,
	}, nil
}

func (m *mockTrader) ClosePosition(symbol string, qty float64) error {
	if m.failClose {
		return fmt.Errorf("mock: close rejected")
	}
	m.closedQty = append(m.closedQty, qty)
	m.position = trader.Position{Symbol: symbol}
	return nil
}

func (m *mockTrader) CancelAllOrders(symbol string) error {
	if m.failCancel {
		return fmt.Errorf("mock: cancel rejected")
	}
	m.cancelAllCalls++
	return nil
}

func (m *mockTrader) SetLeverage(symbol string, leverage int) error { return nil }

func (m *mockTrader) SetPositionMode(dualSide bool) error { return nil }

func (m *mockTrader) GetKlines(symbol string, interval string, limit int) ([]trader.Kline, error) {
	return nil, fmt.Errorf("mock: no klines")
}

// lastOrders returns the most recent n placed orders.
func (m *mockTrader) ordersSince(n int) []trader.OrderRequest {
	return m.placedOrders[n:]
}
