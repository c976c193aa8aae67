// Package risk computes per-position TP/SL targets and grid-wide exit decisions.
package risk

import (
	"gridscalper/config"
	"gridscalper/grid"
	"gridscalper/logger"
)

// PositionSide identifies the direction of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Targets holds the take-profit and stop-loss prices for a single position.
// A zero price means the corresponding target is not enforced. Targets are
// computed once when a position opens and stay fixed until it closes.
type Targets struct {
	EntryPrice float64
	Side       PositionSide
	TakeProfit float64
	StopLoss   float64
}

// HasTakeProfit reports whether a take-profit target is set.
func (t Targets) HasTakeProfit() bool { return t.TakeProfit > 0 }

// HasStopLoss reports whether a stop-loss target is set.
func (t Targets) HasStopLoss() bool { return t.StopLoss > 0 }

// TriggerReason tags which target a price crossing hit.
type TriggerReason string

const (
	TriggerNone       TriggerReason = ""
	TriggerTakeProfit TriggerReason = "TAKE_PROFIT"
	TriggerStopLoss   TriggerReason = "STOP_LOSS"
)

// CalculateTargets computes TP/SL prices for a position opened at entry.
//
// Stop-loss is always percentage-based. Take-profit depends on the configured
// mode: PERCENTAGE uses the symmetric formula, GRID_RANGE looks up the nearest
// grid level strictly beyond entry in the profit direction from the active
// session. When GRID_RANGE finds no qualifying level (or no session is active)
// the take-profit is left unset and the position relies on stop-loss and the
// grid-wide reset rules alone.
func CalculateTargets(entry float64, side PositionSide, cfg *config.Config, sess *grid.Session) Targets {
	t := Targets{EntryPrice: entry, Side: side}

	if cfg.StopLossPercent > 0 {
		sl := cfg.StopLossPercent / 100
		if side == SideLong {
			t.StopLoss = entry * (1 - sl)
		} else {
			t.StopLoss = entry * (1 + sl)
		}
	}

	switch cfg.TPMode {
	case config.TPModePercentage:
		if cfg.TakeProfitPercent > 0 {
			tp := cfg.TakeProfitPercent / 100
			if side == SideLong {
				t.TakeProfit = entry * (1 + tp)
			} else {
				t.TakeProfit = entry * (1 - tp)
			}
		}
	case config.TPModeGridRange:
		var level float64
		var ok bool
		if side == SideLong {
			level, ok = sess.NextLevelAbove(entry)
		} else {
			level, ok = sess.NextLevelBelow(entry)
		}
		if ok {
			t.TakeProfit = level
		} else {
			logger.Warnf("[Risk] No grid level beyond entry %.2f for %s take-profit, TP not enforced", entry, side)
		}
	}

	return t
}

// CheckTargets compares the current price against the targets and reports
// which one, if any, has been hit. Both checks use inclusive crossings.
// Take-profit is checked first, matching the original priority.
func CheckTargets(t Targets, price float64) TriggerReason {
	if t.HasTakeProfit() {
		if t.Side == SideLong && price >= t.TakeProfit {
			return TriggerTakeProfit
		}
		if t.Side == SideShort && price <= t.TakeProfit {
			return TriggerTakeProfit
		}
	}
	if t.HasStopLoss() {
		if t.Side == SideLong && price <= t.StopLoss {
			return TriggerStopLoss
		}
		if t.Side == SideShort && price >= t.StopLoss {
			return TriggerStopLoss
		}
	}
	return TriggerNone
}
