package analysis

import (
	"errors"
	"fmt"
	"time"

	"gridscalper/logger"
	"gridscalper/trader"
)

// Trend is the SMA crossover state.
type Trend string

const (
	TrendUp   Trend = "UPTREND"
	TrendDown Trend = "DOWNTREND"
)

// Momentum is the stochastic oscillator state.
type Momentum string

const (
	MomentumOversold   Momentum = "OVERSOLD"
	MomentumOverbought Momentum = "OVERBOUGHT"
	MomentumNeutral    Momentum = "NEUTRAL"
)

const (
	fastSMAPeriod = 9
	slowSMAPeriod = 26
	stochKPeriod  = 14
	stochSmooth   = 3
	atrPeriod     = 14
	bollPeriod    = 20

	oversoldThreshold   = 20
	overboughtThreshold = 80

	retryDelay = 5 * time.Second
)

// minKlineLimit covers the slow SMA plus the stochastic warm-up with headroom.
const minKlineLimit = 100

// ErrAnalysisFailed marks an analysis cycle abandoned after exhausting its
// retries. Callers skip the interval and keep the previous signal.
var ErrAnalysisFailed = errors.New("market analysis failed")

// Signal is one completed market snapshot.
type Signal struct {
	Symbol     string
	Trend      Trend
	Momentum   Momentum
	Price      float64
	SMAFast    float64
	SMASlow    float64
	StochK     float64
	ATR        float64
	BollUpper  float64
	BollLower  float64
	AnalyzedAt time.Time
}

// KlineSource provides the candle data the analyzer consumes.
type KlineSource interface {
	GetKlines(symbol string, interval string, limit int) ([]trader.Kline, error)
}

// Analyzer computes trend and momentum signals from exchange candles, with a
// bounded retry around the data fetch.
type Analyzer struct {
	source     KlineSource
	interval   string
	limit      int
	maxRetries int
	sleep      func(time.Duration) // overridable in tests
}

func NewAnalyzer(source KlineSource, interval string, limit, maxRetries int) *Analyzer {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if limit < minKlineLimit {
		limit = minKlineLimit
	}
	return &Analyzer{
		source:     source,
		interval:   interval,
		limit:      limit,
		maxRetries: maxRetries,
		sleep:      time.Sleep,
	}
}

// Analyze fetches candles and classifies the market. On fetch or data errors
// it retries up to maxRetries times with a fixed delay; when all attempts
// fail it returns an error wrapping ErrAnalysisFailed.
func (a *Analyzer) Analyze(symbol string) (*Signal, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		sig, err := a.analyzeOnce(symbol)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		logger.Warnf("[Analysis] Attempt %d/%d for %s failed: %v", attempt, a.maxRetries, symbol, err)
		if attempt < a.maxRetries {
			a.sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("%w for %s after %d attempts: %v", ErrAnalysisFailed, symbol, a.maxRetries, lastErr)
}

func (a *Analyzer) analyzeOnce(symbol string) (*Signal, error) {
	klines, err := a.source.GetKlines(symbol, a.interval, a.limit)
	if err != nil {
		return nil, err
	}
	if len(klines) < slowSMAPeriod {
		return nil, fmt.Errorf("not enough candles: got %d, need %d", len(klines), slowSMAPeriod)
	}

	smaFast := SMA(klines, fastSMAPeriod)
	smaSlow := SMA(klines, slowSMAPeriod)
	stochK := StochasticK(klines, stochKPeriod, stochSmooth)
	atr := ATR(klines, atrPeriod)
	_, bollUp, bollLow := Bollinger(klines, bollPeriod)

	sig := &Signal{
		Symbol:     symbol,
		Price:      klines[len(klines)-1].Close,
		SMAFast:    smaFast,
		SMASlow:    smaSlow,
		StochK:     stochK,
		ATR:        atr,
		BollUpper:  bollUp,
		BollLower:  bollLow,
		AnalyzedAt: time.Now(),
	}

	if smaFast > smaSlow {
		sig.Trend = TrendUp
	} else {
		sig.Trend = TrendDown
	}

	switch {
	case stochK < oversoldThreshold:
		sig.Momentum = MomentumOversold
	case stochK > overboughtThreshold:
		sig.Momentum = MomentumOverbought
	default:
		sig.Momentum = MomentumNeutral
	}

	logger.Infof("[Analysis] %s: trend=%s momentum=%s price=%.2f stochK=%.1f smaFast=%.2f smaSlow=%.2f",
		symbol, sig.Trend, sig.Momentum, sig.Price, sig.StochK, sig.SMAFast, sig.SMASlow)

	return sig, nil
}
