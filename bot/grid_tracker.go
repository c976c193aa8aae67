package bot

import (
	"fmt"
	"math"

	"gridscalper/config"
	"gridscalper/grid"
	"gridscalper/logger"
	"gridscalper/notify"
	"gridscalper/risk"
	"gridscalper/store"
	"gridscalper/trader"
)

// GridState is the grid tracker's lifecycle state.
type GridState string

const (
	GridInactive           GridState = "INACTIVE"
	GridActiveNoPosition   GridState = "ACTIVE_NO_POSITION"
	GridActiveWithPosition GridState = "ACTIVE_WITH_POSITION"
)

const sizeEpsilon = 1e-9

// GridTracker owns one grid session per symbol: its activity flag, the
// consecutive-position counter, per-position TP/SL targets, and the neutral
// mode reopen queue. Fill detection is edge-triggered by comparing the
// reported position size against the previous cycle's size.
type GridTracker struct {
	cfg       *config.Config
	exchange  trader.Trader
	st        *store.Store
	notifier  notify.Notifier
	evaluator *risk.Evaluator

	state         GridState
	session       *grid.Session
	sessionID     int64
	positionCount int
	prevSize      float64
	targets       *risk.Targets
	queue         ReopenQueue
}

func NewGridTracker(cfg *config.Config, exchange trader.Trader, st *store.Store, notifier notify.Notifier) *GridTracker {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &GridTracker{
		cfg:       cfg,
		exchange:  exchange,
		st:        st,
		notifier:  notifier,
		evaluator: risk.NewEvaluator(cfg),
		state:     GridInactive,
	}
}

func (t *GridTracker) State() GridState       { return t.state }
func (t *GridTracker) PositionCount() int     { return t.positionCount }
func (t *GridTracker) Session() *grid.Session { return t.session }
func (t *GridTracker) PendingReopens() int    { return t.queue.Len() }

// Update runs one tracker cycle: activate the grid if needed, detect fills,
// apply the soft per-position TP/SL, drain one reopen order, then run the
// hard reset rules. pos must be the grid-attributed position snapshot.
// allowed reflects the neutral-only gate: while false no new session starts,
// and a running session is torn down.
func (t *GridTracker) Update(price float64, pos *trader.Position, allowed bool) {
	if !allowed {
		if t.state != GridInactive {
			t.reset(risk.ExitSignalGate, pos.Size)
		}
		return
	}
	if t.state == GridInactive {
		if err := t.activate(price); err != nil {
			logger.Errorf("[Grid] Activation failed: %v", err)
			return
		}
	}

	size := pos.Size
	t.detectTransitions(size, pos.EntryPrice)

	// Drain before the soft exit so an entry queued by this cycle's close
	// waits a full cycle, giving the counter rules a chance to run.
	t.processReopen()

	size = t.checkSoftExit(price, size)

	entry := 0.0
	if math.Abs(size) > sizeEpsilon {
		entry = pos.EntryPrice
	}
	decision := t.evaluator.Evaluate(price, t.session, t.positionCount, entry)
	if decision.Exit {
		t.reset(decision.Reason, size)
	}
}

// activate builds a fresh session centered on the current price and places
// the mode-filtered limit orders. The session is only committed once every
// order is accepted; on any failure all orders are cancelled and the next
// cycle retries from scratch.
func (t *GridTracker) activate(price float64) error {
	width := t.cfg.EndPrice - t.cfg.StartPrice
	sess, err := grid.NewSession(price, width, t.cfg.GridSize+1)
	if err != nil {
		t.notifier.Sendf("⚠️ Grid activation failed for %s: %v", t.cfg.Symbol, err)
		return err
	}

	placed := 0
	for _, level := range sess.Levels {
		side, keep := t.levelSide(level, sess.Center)
		if !keep {
			continue
		}
		req := &trader.OrderRequest{
			Symbol:        t.cfg.Symbol,
			Side:          side,
			Price:         level,
			Quantity:      t.sizeFor(level),
			ClientOrderID: clientOrderID("grid"),
		}
		if side == trader.Buy {
			req.PositionSide = trader.PositionLong
		} else {
			req.PositionSide = trader.PositionShort
		}
		if _, err := t.exchange.PlaceOrder(req); err != nil {
			logger.Errorf("[Grid] Failed to place %s order at %.2f: %v", side, level, err)
			if cancelErr := t.exchange.CancelAllOrders(t.cfg.Symbol); cancelErr != nil {
				logger.Errorf("[Grid] Cleanup cancel failed: %v", cancelErr)
			}
			return fmt.Errorf("order placement at level %.2f: %w", level, err)
		}
		placed++
	}

	t.session = sess
	t.state = GridActiveNoPosition
	t.sessionID = t.st.RecordSessionStart(t.cfg.Symbol, sess.LowerBound, sess.UpperBound, sess.Center, len(sess.Levels))
	logger.Infof("[Grid] Session active: %d orders placed in [%.2f, %.2f]", placed, sess.LowerBound, sess.UpperBound)
	t.notifier.Sendf("📐 Grid started for %s: %d orders in [%.2f, %.2f]", t.cfg.Symbol, placed, sess.LowerBound, sess.UpperBound)
	return nil
}

// levelSide assigns a side to a grid level relative to the session center,
// applying the trading mode filter. Levels on the center itself are skipped.
func (t *GridTracker) levelSide(level, center float64) (trader.OrderSide, bool) {
	switch {
	case level < center:
		if t.cfg.Mode == config.ModeShort {
			return "", false
		}
		return trader.Buy, true
	case level > center:
		if t.cfg.Mode == config.ModeLong {
			return "", false
		}
		return trader.Sell, true
	default:
		return "", false
	}
}

// detectTransitions updates the state machine from the observed position
// size. A growing absolute size is a new grid fill: increment the counter
// and compute fresh targets from the reported entry. Shrinking to zero
// without a local close request means the exchange closed it for us.
func (t *GridTracker) detectTransitions(size, entryPrice float64) {
	prev := t.prevSize
	t.prevSize = size

	switch {
	case math.Abs(size) > math.Abs(prev)+sizeEpsilon:
		t.positionCount++
		side := risk.SideLong
		if size < 0 {
			side = risk.SideShort
		}
		targets := risk.CalculateTargets(entryPrice, side, t.cfg, t.session)
		t.targets = &targets
		t.state = GridActiveWithPosition
		logger.Infof("[Grid] Fill detected: size %.6f entry %.2f (position #%d), TP=%.2f SL=%.2f",
			size, entryPrice, t.positionCount, targets.TakeProfit, targets.StopLoss)
		t.st.RecordEvent("grid_fill", fmt.Sprintf("size=%.6f entry=%.2f count=%d", size, entryPrice, t.positionCount))

	case math.Abs(size) <= sizeEpsilon && math.Abs(prev) > sizeEpsilon:
		logger.Infof("[Grid] Position closed externally (was %.6f)", prev)
		t.targets = nil
		t.state = GridActiveNoPosition
	}
}

// checkSoftExit closes the position when price crosses its targets. The grid
// session stays active and the counter keeps its value. Returns the size
// still open after the check.
func (t *GridTracker) checkSoftExit(price, size float64) float64 {
	if t.state != GridActiveWithPosition || t.targets == nil || math.Abs(size) <= sizeEpsilon {
		return size
	}

	reason := risk.CheckTargets(*t.targets, price)
	if reason == risk.TriggerNone {
		return size
	}

	qty := math.Abs(size)
	if err := t.exchange.ClosePosition(t.cfg.Symbol, qty); err != nil {
		logger.Errorf("[Grid] Failed to close position on %s: %v", reason, err)
		return size
	}

	closeSide := trader.Sell
	if size < 0 {
		closeSide = trader.Buy
	}
	logger.Infof("[Grid] Position closed on %s: %.6f @ %.2f", reason, qty, price)
	t.st.RecordTrade(store.Trade{
		Symbol:   t.cfg.Symbol,
		Source:   store.SourceGrid,
		Side:     string(closeSide),
		Quantity: qty,
		Price:    price,
		Reason:   string(reason),
	})
	t.notifier.Sendf("💰 Grid position closed (%s): %.6f %s @ %.2f", reason, qty, t.cfg.Symbol, price)

	if t.cfg.Mode == config.ModeNeutral && t.cfg.EnablePositionReopen {
		reopenSide := trader.Buy
		if size > 0 {
			reopenSide = trader.Sell
		}
		t.queue.Enqueue(ReopenEntry{Price: t.targets.EntryPrice, Quantity: qty, Side: reopenSide})
		logger.Infof("[Grid] Queued reopen: %s %.6f @ %.2f (%d pending)", reopenSide, qty, t.targets.EntryPrice, t.queue.Len())
	}

	t.targets = nil
	t.prevSize = 0
	t.state = GridActiveNoPosition
	return 0
}

// processReopen places at most one queued reopen order per cycle. A failed
// placement goes back to the front of the queue for the next cycle.
func (t *GridTracker) processReopen() {
	if t.session == nil || !t.session.Active {
		return
	}
	entry, ok := t.queue.Dequeue()
	if !ok {
		return
	}

	req := &trader.OrderRequest{
		Symbol:        t.cfg.Symbol,
		Side:          entry.Side,
		Price:         entry.Price,
		Quantity:      entry.Quantity,
		ClientOrderID: clientOrderID("reopen"),
	}
	if entry.Side == trader.Buy {
		req.PositionSide = trader.PositionLong
	} else {
		req.PositionSide = trader.PositionShort
	}
	if _, err := t.exchange.PlaceOrder(req); err != nil {
		logger.Errorf("[Grid] Reopen placement failed at %.2f: %v", entry.Price, err)
		t.queue.PushFront(entry)
		return
	}
	logger.Infof("[Grid] Reopened %s %.6f @ %.2f (%d pending)", entry.Side, entry.Quantity, entry.Price, t.queue.Len())
}

// reset tears the whole session down: cancel all orders, close any open
// position, clear every counter. State is only cleared once both exchange
// calls succeed so a failed teardown is retried next cycle.
func (t *GridTracker) reset(reason risk.ExitReason, size float64) {
	logger.Warnf("[Grid] Reset triggered: %s", reason)

	if err := t.exchange.CancelAllOrders(t.cfg.Symbol); err != nil {
		logger.Errorf("[Grid] Reset cancel failed: %v", err)
		return
	}
	if math.Abs(size) > sizeEpsilon {
		if err := t.exchange.ClosePosition(t.cfg.Symbol, math.Abs(size)); err != nil {
			logger.Errorf("[Grid] Reset close failed: %v", err)
			return
		}
	}

	t.st.RecordSessionEnd(t.sessionID, string(reason))
	t.st.RecordEvent("grid_reset", string(reason))
	t.notifier.Sendf("🔄 Grid reset for %s: %s", t.cfg.Symbol, reason)

	if t.session != nil {
		t.session.Clear()
	}
	t.session = nil
	t.sessionID = 0
	t.positionCount = 0
	t.targets = nil
	t.queue.Clear()
	t.prevSize = 0
	t.state = GridInactive
}

// sizeFor converts the configured position size into a base quantity at the
// given price.
func (t *GridTracker) sizeFor(price float64) float64 {
	if t.cfg.PositionSizeType == config.SizeTypeQuote {
		return t.cfg.PositionSize / price
	}
	return t.cfg.PositionSize
}
