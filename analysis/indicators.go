// Package analysis classifies market trend and momentum from candle data.
package analysis

import (
	"math"

	"gridscalper/trader"
)

// SMA returns the simple moving average of the last period closes.
// Returns 0 when there is not enough data.
func SMA(klines []trader.Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}
	sum := 0.0
	for _, k := range klines[len(klines)-period:] {
		sum += k.Close
	}
	return sum / float64(period)
}

// StochasticK returns the smoothed %K of the stochastic oscillator: the raw
// %K over kPeriod candles, averaged over the last smooth values.
// Returns 0 when there is not enough data. A flat high/low window yields 50.
func StochasticK(klines []trader.Kline, kPeriod, smooth int) float64 {
	if kPeriod <= 0 || smooth <= 0 || len(klines) < kPeriod+smooth-1 {
		return 0
	}

	raw := make([]float64, 0, smooth)
	for i := len(klines) - smooth; i < len(klines); i++ {
		window := klines[i-kPeriod+1 : i+1]
		low := window[0].Low
		high := window[0].High
		for _, k := range window[1:] {
			if k.Low < low {
				low = k.Low
			}
			if k.High > high {
				high = k.High
			}
		}
		if high == low {
			raw = append(raw, 50)
			continue
		}
		raw = append(raw, 100*(window[len(window)-1].Close-low)/(high-low))
	}

	sum := 0.0
	for _, v := range raw {
		sum += v
	}
	return sum / float64(len(raw))
}

// ATR returns the average true range over period candles (simple average of
// the true range, not Wilder-smoothed).
func ATR(klines []trader.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		tr := klines[i].High - klines[i].Low
		if hc := math.Abs(klines[i].High - klines[i-1].Close); hc > tr {
			tr = hc
		}
		if lc := math.Abs(klines[i].Low - klines[i-1].Close); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

// Bollinger returns the middle, upper and lower Bollinger bands over period
// candles with a 2-sigma width.
func Bollinger(klines []trader.Kline, period int) (middle, upper, lower float64) {
	if period <= 0 || len(klines) < period {
		return 0, 0, 0
	}
	middle = SMA(klines, period)

	variance := 0.0
	for _, k := range klines[len(klines)-period:] {
		d := k.Close - middle
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(period))
	return middle, middle + 2*sigma, middle - 2*sigma
}
