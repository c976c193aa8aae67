package bot

import (
	"math"

	"gridscalper/analysis"
	"gridscalper/config"
	"gridscalper/logger"
	"gridscalper/notify"
	"gridscalper/risk"
	"gridscalper/store"
	"gridscalper/trader"
)

// MarketState is the signal-driven position slot's state.
type MarketState string

const (
	MarketNoPosition MarketState = "NO_POSITION"
	MarketOpenLong   MarketState = "OPEN_LONG"
	MarketOpenShort  MarketState = "OPEN_SHORT"
)

// MarketTracker owns the signal-driven (non-grid) position: its entry, TP/SL
// targets, and the reopen counter. It is fed a trend/momentum signal on the
// analysis cadence and a price on every bot cycle.
type MarketTracker struct {
	cfg      *config.Config
	exchange trader.Trader
	st       *store.Store
	notifier notify.Notifier

	state       MarketState
	qty         float64
	entry       float64
	targets     *risk.Targets
	reopenCount int
	lastSignal  *analysis.Signal
}

func NewMarketTracker(cfg *config.Config, exchange trader.Trader, st *store.Store, notifier notify.Notifier) *MarketTracker {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &MarketTracker{
		cfg:      cfg,
		exchange: exchange,
		st:       st,
		notifier: notifier,
		state:    MarketNoPosition,
	}
}

func (t *MarketTracker) State() MarketState           { return t.state }
func (t *MarketTracker) ReopenCount() int             { return t.reopenCount }
func (t *MarketTracker) LastSignal() *analysis.Signal { return t.lastSignal }

// OpenSize returns the signed position size this tracker believes it holds,
// so the orchestrator can attribute the remainder of the exchange snapshot
// to the grid.
func (t *MarketTracker) OpenSize() float64 {
	switch t.state {
	case MarketOpenLong:
		return t.qty
	case MarketOpenShort:
		return -t.qty
	default:
		return 0
	}
}

// OnSignal applies a fresh trend/momentum classification. An unchanged
// signal means hold; a directional signal flips the position to its side; a
// neutral momentum closes out (unless configured to ride through it).
func (t *MarketTracker) OnSignal(sig *analysis.Signal, price float64) {
	prev := t.lastSignal
	t.lastSignal = sig

	if prev != nil && prev.Trend == sig.Trend && prev.Momentum == sig.Momentum {
		return
	}

	// Any changed signal restarts the reopen allowance, whatever it asks for.
	t.reopenCount = 0

	switch {
	case sig.Trend == analysis.TrendUp && sig.Momentum == analysis.MomentumOverbought:
		t.switchTo(risk.SideLong, price)

	case sig.Trend == analysis.TrendDown && sig.Momentum == analysis.MomentumOversold:
		t.switchTo(risk.SideShort, price)

	case sig.Momentum == analysis.MomentumNeutral:
		if t.cfg.NeutralMomentumAction == config.NeutralActionContinue {
			logger.Infof("[Market] Neutral momentum, holding position (action=continue)")
			return
		}
		if t.state != MarketNoPosition {
			if !t.closePosition(price, "NEUTRAL_SIGNAL") {
				// Re-process this signal next interval.
				t.lastSignal = nil
			}
		}

	default:
		// Trend and momentum disagree, keep whatever we hold.
	}
}

// switchTo closes any existing position and opens one on the signalled side.
func (t *MarketTracker) switchTo(side risk.PositionSide, price float64) {
	if t.state != MarketNoPosition {
		if !t.closePosition(price, "SIGNAL_CHANGE") {
			t.lastSignal = nil
			return
		}
	}
	if !t.open(side, price) {
		t.lastSignal = nil
	}
}

// CheckCycle runs every bot cycle: detect an externally closed position,
// then check the price against the TP/SL targets. Either closure path feeds
// the reopen logic. totalSize is the raw exchange position size for the
// symbol.
func (t *MarketTracker) CheckCycle(price, totalSize float64) {
	if t.state == MarketNoPosition {
		return
	}

	// The exchange reports flat but we think we hold: an attached TP/SL
	// order (or a one-way-mode closing order) already closed it. Same
	// bookkeeping as a local TP/SL hit.
	if math.Abs(totalSize) <= sizeEpsilon {
		logger.Infof("[Market] Position closed externally, treating as target hit")
		t.st.RecordEvent("market_closed_external", string(t.state))
		side := t.side()
		t.clearPosition()
		t.maybeReopen(side, price)
		return
	}

	if t.targets == nil {
		return
	}
	reason := risk.CheckTargets(*t.targets, price)
	if reason == risk.TriggerNone {
		return
	}

	side := t.side()
	if !t.closePosition(price, string(reason)) {
		return
	}
	t.maybeReopen(side, price)
}

// maybeReopen re-enters the same side at the current price while the last
// known signal is still directional and the reopen cap allows it.
func (t *MarketTracker) maybeReopen(side risk.PositionSide, price float64) {
	if t.lastSignal == nil || t.lastSignal.Momentum == analysis.MomentumNeutral {
		return
	}
	if !t.cfg.UnlimitedReopens() && t.reopenCount >= t.cfg.MaxMarketPositionReopens {
		logger.Infof("[Market] Reopen limit reached (%d), staying flat", t.reopenCount)
		return
	}
	if t.open(side, price) {
		t.reopenCount++
		logger.Infof("[Market] Reopened %s (reopen #%d)", side, t.reopenCount)
	}
}

func (t *MarketTracker) open(side risk.PositionSide, price float64) bool {
	qty := t.cfg.PositionSize
	if t.cfg.PositionSizeType == config.SizeTypeQuote {
		qty = t.cfg.PositionSize / price
	}

	req := &trader.OrderRequest{
		Symbol:        t.cfg.Symbol,
		Quantity:      qty,
		ClientOrderID: clientOrderID("mkt"),
	}
	if side == risk.SideLong {
		req.Side = trader.Buy
		req.PositionSide = trader.PositionLong
	} else {
		req.Side = trader.Sell
		req.PositionSide = trader.PositionShort
	}

	targets := risk.CalculateTargets(price, side, t.cfg, nil)
	req.TakeProfitPrice = targets.TakeProfit
	req.StopLossPrice = targets.StopLoss

	if _, err := t.exchange.PlaceOrder(req); err != nil {
		logger.Errorf("[Market] Failed to open %s position: %v", side, err)
		return false
	}

	t.qty = qty
	t.entry = price
	t.targets = &targets
	if side == risk.SideLong {
		t.state = MarketOpenLong
	} else {
		t.state = MarketOpenShort
	}

	logger.Infof("[Market] Opened %s %.6f @ %.2f, TP=%.2f SL=%.2f", side, qty, price, targets.TakeProfit, targets.StopLoss)
	t.st.RecordTrade(store.Trade{
		Symbol:   t.cfg.Symbol,
		Source:   store.SourceMarket,
		Side:     string(req.Side),
		Quantity: qty,
		Price:    price,
		Reason:   "SIGNAL_OPEN",
	})
	t.notifier.Sendf("📈 Market position opened: %s %.6f %s @ %.2f", side, qty, t.cfg.Symbol, price)
	return true
}

// closePosition market-closes the tracked quantity. State is only cleared on
// success; a failed close keeps the slot open for a retry.
func (t *MarketTracker) closePosition(price float64, reason string) bool {
	if err := t.exchange.ClosePosition(t.cfg.Symbol, t.qty); err != nil {
		logger.Errorf("[Market] Failed to close position (%s): %v", reason, err)
		return false
	}

	closeSide := trader.Sell
	if t.state == MarketOpenShort {
		closeSide = trader.Buy
	}
	logger.Infof("[Market] Position closed (%s): %.6f @ %.2f", reason, t.qty, price)
	t.st.RecordTrade(store.Trade{
		Symbol:   t.cfg.Symbol,
		Source:   store.SourceMarket,
		Side:     string(closeSide),
		Quantity: t.qty,
		Price:    price,
		Reason:   reason,
	})
	t.notifier.Sendf("📉 Market position closed (%s): %.6f %s @ %.2f", reason, t.qty, t.cfg.Symbol, price)

	t.clearPosition()
	return true
}

func (t *MarketTracker) side() risk.PositionSide {
	if t.state == MarketOpenShort {
		return risk.SideShort
	}
	return risk.SideLong
}

func (t *MarketTracker) clearPosition() {
	t.state = MarketNoPosition
	t.qty = 0
	t.entry = 0
	t.targets = nil
}
