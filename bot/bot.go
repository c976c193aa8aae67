package bot

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"gridscalper/analysis"
	"gridscalper/config"
	"gridscalper/logger"
	"gridscalper/market"
	"gridscalper/notify"
	"gridscalper/store"
	"gridscalper/trader"
)

// errShutdownRequested stops the polling loop after a graceful teardown.
var errShutdownRequested = errors.New("shutdown requested")

// Status is a point-in-time snapshot of the bot for the status API.
type Status struct {
	Symbol            string    `json:"symbol"`
	Mode              string    `json:"mode"`
	Price             float64   `json:"price"`
	GridState         string    `json:"grid_state"`
	GridLowerBound    float64   `json:"grid_lower_bound"`
	GridUpperBound    float64   `json:"grid_upper_bound"`
	GridPositionCount int       `json:"grid_position_count"`
	PendingReopens    int       `json:"pending_reopens"`
	MarketState       string    `json:"market_state"`
	MarketReopenCount int       `json:"market_reopen_count"`
	Trend             string    `json:"trend,omitempty"`
	Momentum          string    `json:"momentum,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Bot is the single-threaded polling loop driving both trackers. One
// iteration per cycle interval: shutdown check, price and position snapshot,
// grid tracker, market tracker, then the time-gated market analysis.
type Bot struct {
	cfg      *config.Config
	exchange trader.Trader
	analyzer *analysis.Analyzer
	stream   *market.PriceStream
	st       *store.Store
	notifier notify.Notifier

	gridTracker   *GridTracker
	marketTracker *MarketTracker

	lastAnalysis time.Time

	statusMu sync.RWMutex
	status   Status
}

// New assembles a bot. analyzer and stream may be nil: without an analyzer
// the market position logic is inert, without a stream every price comes
// from REST.
func New(cfg *config.Config, exchange trader.Trader, analyzer *analysis.Analyzer, stream *market.PriceStream, st *store.Store, notifier notify.Notifier) *Bot {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Bot{
		cfg:           cfg,
		exchange:      exchange,
		analyzer:      analyzer,
		stream:        stream,
		st:            st,
		notifier:      notifier,
		gridTracker:   NewGridTracker(cfg, exchange, st, notifier),
		marketTracker: NewMarketTracker(cfg, exchange, st, notifier),
	}
}

// Run executes the polling loop until the context is cancelled or the
// shutdown flag file appears. Both paths tear down orders and positions
// before returning.
func (b *Bot) Run(ctx context.Context) error {
	logger.Infof("[Bot] Starting loop for %s (mode=%s, cycle=%s)", b.cfg.Symbol, b.cfg.Mode, b.cfg.CycleInterval)
	b.notifier.Sendf("🤖 Bot started: %s mode=%s", b.cfg.Symbol, b.cfg.Mode)

	ticker := time.NewTicker(b.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		if err := b.cycle(); err != nil {
			if errors.Is(err, errShutdownRequested) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			logger.Infof("[Bot] Context cancelled, shutting down")
			b.teardown("signal")
			return nil
		case <-ticker.C:
		}
	}
}

// cycle is one loop iteration. All recoverable errors are logged and turn
// into "no state change this cycle"; only the shutdown request propagates.
func (b *Bot) cycle() error {
	if b.shutdownRequested() {
		b.teardown("flag file")
		if err := os.Remove(b.cfg.ShutdownFlagFile); err != nil && !os.IsNotExist(err) {
			logger.Errorf("[Bot] Failed to remove shutdown flag: %v", err)
		}
		return errShutdownRequested
	}

	price, err := b.currentPrice()
	if err != nil {
		logger.Errorf("[Bot] Failed to fetch price: %v", err)
		return nil
	}

	pos, err := b.exchange.GetPosition(b.cfg.Symbol)
	if err != nil {
		logger.Errorf("[Bot] Failed to fetch position: %v", err)
		return nil
	}

	// The exchange reports one net position; subtract the market tracker's
	// share so the grid tracker sees only its own exposure.
	gridPos := *pos
	gridPos.Size -= b.marketTracker.OpenSize()

	b.gridTracker.Update(price, &gridPos, b.gridAllowed())
	b.marketTracker.CheckCycle(price, pos.Size)

	b.refreshSignal(price)
	b.updateStatus(price)
	return nil
}

// gridAllowed applies the neutral-only gate: when enabled, new grid sessions
// only start while the market momentum is neutral (or unknown).
func (b *Bot) gridAllowed() bool {
	if !b.cfg.GridBotNeutralOnly || !b.cfg.EnableMarketPositionLogic {
		return true
	}
	sig := b.marketTracker.LastSignal()
	return sig == nil || sig.Momentum == analysis.MomentumNeutral
}

// refreshSignal feeds the market tracker a fresh classification on the
// analysis cadence. A failed analysis skips the whole interval and keeps the
// previous signal.
func (b *Bot) refreshSignal(price float64) {
	if !b.cfg.EnableMarketPositionLogic || b.analyzer == nil {
		return
	}
	if time.Since(b.lastAnalysis) < b.cfg.AnalysisInterval {
		return
	}
	b.lastAnalysis = time.Now()

	sig, err := b.analyzer.Analyze(b.cfg.Symbol)
	if err != nil {
		logger.Errorf("[Bot] Analysis interval skipped: %v", err)
		b.st.RecordEvent("analysis_failed", err.Error())
		return
	}
	b.marketTracker.OnSignal(sig, price)
}

// currentPrice prefers the websocket tick when it is fresh enough, falling
// back to a REST query.
func (b *Bot) currentPrice() (float64, error) {
	if b.stream != nil {
		price, at, ok := b.stream.LatestPrice()
		if ok && time.Since(at) < 2*b.cfg.CycleInterval {
			return price, nil
		}
	}
	return b.exchange.GetMarketPrice(b.cfg.Symbol)
}

func (b *Bot) shutdownRequested() bool {
	_, err := os.Stat(b.cfg.ShutdownFlagFile)
	return err == nil
}

// teardown cancels all orders and closes any open position. Failures are
// logged; shutdown proceeds regardless since the operator asked for it.
func (b *Bot) teardown(cause string) {
	logger.Warnf("[Bot] Shutting down (%s): cancelling orders and closing positions", cause)

	if err := b.exchange.CancelAllOrders(b.cfg.Symbol); err != nil {
		logger.Errorf("[Bot] Shutdown cancel failed: %v", err)
	}
	if err := b.exchange.ClosePosition(b.cfg.Symbol, 0); err != nil {
		logger.Errorf("[Bot] Shutdown close failed: %v", err)
	}

	b.st.RecordEvent("shutdown", cause)
	b.notifier.Sendf("🛑 Bot stopped for %s (%s)", b.cfg.Symbol, cause)
}

// Status returns the latest cycle snapshot.
func (b *Bot) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

func (b *Bot) updateStatus(price float64) {
	s := Status{
		Symbol:            b.cfg.Symbol,
		Mode:              b.cfg.Mode,
		Price:             price,
		GridState:         string(b.gridTracker.State()),
		GridPositionCount: b.gridTracker.PositionCount(),
		PendingReopens:    b.gridTracker.PendingReopens(),
		MarketState:       string(b.marketTracker.State()),
		MarketReopenCount: b.marketTracker.ReopenCount(),
		UpdatedAt:         time.Now(),
	}
	if sess := b.gridTracker.Session(); sess != nil && sess.Active {
		s.GridLowerBound = sess.LowerBound
		s.GridUpperBound = sess.UpperBound
	}
	if sig := b.marketTracker.LastSignal(); sig != nil {
		s.Trend = string(sig.Trend)
		s.Momentum = string(sig.Momentum)
	}

	b.statusMu.Lock()
	b.status = s
	b.statusMu.Unlock()
}
