package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridscalper/trader"
)

// candles builds klines from close prices, with high/low hugging the close.
func candles(closes ...float64) []trader.Kline {
	out := make([]trader.Kline, len(closes))
	for i, c := range closes {
		out[i] = trader.Kline{
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	ks := candles(1, 2, 3, 4, 5)

	assert.InDelta(t, 4.0, SMA(ks, 3), 1e-9, "average of the last 3 closes")
	assert.InDelta(t, 3.0, SMA(ks, 5), 1e-9)
	assert.Zero(t, SMA(ks, 6), "not enough data")
	assert.Zero(t, SMA(ks, 0))
}

func TestStochasticKExtremes(t *testing.T) {
	// Steadily rising closes keep the close pinned near the window high.
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	k := StochasticK(candles(rising...), 14, 3)
	assert.Greater(t, k, 80.0, "rising market reads overbought")

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	k = StochasticK(candles(falling...), 14, 3)
	assert.Less(t, k, 20.0, "falling market reads oversold")
}

func TestStochasticKFlatWindow(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	ks := candles(flat...)
	// Flatten high/low completely to force a zero-width window.
	for i := range ks {
		ks[i].High = 100
		ks[i].Low = 100
	}
	assert.InDelta(t, 50.0, StochasticK(ks, 14, 3), 1e-9)
}

func TestStochasticKInsufficientData(t *testing.T) {
	assert.Zero(t, StochasticK(candles(1, 2, 3), 14, 3))
}

func TestATR(t *testing.T) {
	// Constant candles: true range is high-low = 2 everywhere.
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	assert.InDelta(t, 2.0, ATR(candles(flat...), 14), 1e-9)

	assert.Zero(t, ATR(candles(1, 2), 14))
}

func TestBollinger(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	middle, upper, lower := Bollinger(candles(flat...), 20)
	assert.InDelta(t, 100.0, middle, 1e-9)
	assert.InDelta(t, 100.0, upper, 1e-9, "zero variance collapses the bands")
	assert.InDelta(t, 100.0, lower, 1e-9)

	middle, upper, lower = Bollinger(candles(1, 2), 20)
	assert.Zero(t, middle)
	assert.Zero(t, upper)
	assert.Zero(t, lower)
}

func TestBollingerSpread(t *testing.T) {
	// Alternating closes around 100: bands must straddle the middle.
	var closes []float64
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			closes = append(closes, 90)
		} else {
			closes = append(closes, 110)
		}
	}
	middle, upper, lower := Bollinger(candles(closes...), 20)
	assert.InDelta(t, 100.0, middle, 1e-9)
	assert.InDelta(t, 120.0, upper, 1e-9, "2 sigma above with sigma=10")
	assert.InDelta(t, 80.0, lower, 1e-9)
}
