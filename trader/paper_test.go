package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource feeds a scripted sequence of prices to the paper trader.
type stubSource struct {
	prices []float64
	idx    int
}

func (s *stubSource) GetMarketPrice(symbol string) (float64, error) {
	if s.idx >= len(s.prices) {
		return s.prices[len(s.prices)-1], nil
	}
	p := s.prices[s.idx]
	s.idx++
	return p, nil
}

func (s *stubSource) GetKlines(symbol string, interval string, limit int) ([]Kline, error) {
	klines := make([]Kline, limit)
	for i := range klines {
		klines[i] = Kline{OpenTime: time.UnixMilli(int64(i)), Close: 100}
	}
	return klines, nil
}

func TestPaperMarketOrderFillsAtLastPrice(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{50000}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)

	result, err := p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", result.Status)
	assert.Equal(t, 50000.0, result.Price)

	pos, err := p.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.1, pos.Size)
	assert.Equal(t, 50000.0, pos.EntryPrice)
}

func TestPaperMarketOrderBeforeAnyPrice(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{50000}})

	_, err := p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 0.1})
	assert.Error(t, err)
}

func TestPaperLimitOrderRestsThenFills(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{50000, 49500, 48900}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)

	result, err := p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Price: 49000, Quantity: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "NEW", result.Status)

	// 49500 does not cross the 49000 buy.
	_, err = p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	pos, _ := p.GetPosition("BTCUSDT")
	assert.Zero(t, pos.Size)

	// 48900 crosses: fill at the limit price, not the market price.
	_, err = p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	pos, _ = p.GetPosition("BTCUSDT")
	assert.Equal(t, 0.2, pos.Size)
	assert.Equal(t, 49000.0, pos.EntryPrice)
}

func TestPaperSellLimitOrderFillsOnRise(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{50000, 51200}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)

	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Sell, Price: 51000, Quantity: 0.3})
	require.NoError(t, err)

	_, err = p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	pos, _ := p.GetPosition("BTCUSDT")
	assert.Equal(t, -0.3, pos.Size)
	assert.Equal(t, 51000.0, pos.EntryPrice)
}

func TestPaperAveragedEntryOnAdd(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{100, 200}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 1})
	require.NoError(t, err)

	_, err = p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 1})
	require.NoError(t, err)

	pos, _ := p.GetPosition("BTCUSDT")
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 150.0, pos.EntryPrice)
}

func TestPaperFlipThroughZero(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{100}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 1})
	require.NoError(t, err)

	// Sell 3 against a long 1: remainder is a fresh short 2 at the fill price.
	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Sell, Quantity: 3})
	require.NoError(t, err)

	pos, _ := p.GetPosition("BTCUSDT")
	assert.Equal(t, -2.0, pos.Size)
	assert.Equal(t, 100.0, pos.EntryPrice)
}

func TestPaperClosePosition(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{100}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 2})
	require.NoError(t, err)

	// Partial close.
	require.NoError(t, p.ClosePosition("BTCUSDT", 0.5))
	pos, _ := p.GetPosition("BTCUSDT")
	assert.Equal(t, 1.5, pos.Size)

	// Full close.
	require.NoError(t, p.ClosePosition("BTCUSDT", 0))
	pos, _ = p.GetPosition("BTCUSDT")
	assert.Zero(t, pos.Size)
	assert.Zero(t, pos.EntryPrice)

	// Closing a flat position is a no-op.
	assert.NoError(t, p.ClosePosition("BTCUSDT", 0))
}

func TestPaperCancelAllOrders(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{50000, 48000}})

	_, err := p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	_, err = p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Price: 49000, Quantity: 0.1})
	require.NoError(t, err)

	require.NoError(t, p.CancelAllOrders("BTCUSDT"))

	// Price crosses the cancelled level: nothing fills.
	_, err = p.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	pos, _ := p.GetPosition("BTCUSDT")
	assert.Zero(t, pos.Size)
}

func TestPaperGetKlinesDelegates(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{100}})

	klines, err := p.GetKlines("BTCUSDT", "15m", 5)
	require.NoError(t, err)
	assert.Len(t, klines, 5)
}

func TestPaperRejectsNonPositiveQuantity(t *testing.T) {
	p := NewPaperTrader(&stubSource{prices: []float64{100}})

	_, err := p.PlaceOrder(&OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 0})
	assert.Error(t, err)
}
