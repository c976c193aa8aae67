package risk

import (
	"gridscalper/config"
	"gridscalper/grid"
)

// ExitReason identifies which grid-wide rule forced a session reset.
type ExitReason string

const (
	ExitNone         ExitReason = "NONE"
	ExitMaxPositions ExitReason = "MAX_POSITIONS"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitRangeExit    ExitReason = "RANGE_EXIT"

	// ExitSignalGate is not produced by the evaluator: the orchestrator uses
	// it when the neutral-only gate tears down a running session.
	ExitSignalGate ExitReason = "SIGNAL_GATE"
)

// Decision is the outcome of one evaluator pass. When Exit is true the whole
// grid session must be torn down: position closed, orders cancelled, counters
// reset.
type Decision struct {
	Exit   bool
	Reason ExitReason
}

// Evaluator applies the grid-wide exit rules in a fixed priority order:
// consecutive-position cap, percentage stop-loss, percentage take-profit,
// then range exit. The first rule that trips decides; evaluation is
// idempotent for a given input.
type Evaluator struct {
	cfg *config.Config
}

func NewEvaluator(cfg *config.Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate checks the current price against the exit rules for an active
// session. positionCount is the running count of consecutive same-direction
// fills, sessionEntry the price at which the current position streak started
// (0 when flat, which disables the percentage rules).
//
// The percentage TP/SL rules are directional and only apply in LONG and
// SHORT mode; NEUTRAL sessions rely on the position cap and range exit.
// Range-exit measures how far price has escaped the grid bounds: the trigger
// lines sit one threshold beyond each bound and the lines themselves trigger.
func (e *Evaluator) Evaluate(price float64, sess *grid.Session, positionCount int, sessionEntry float64) Decision {
	if sess == nil || !sess.Active {
		return Decision{Reason: ExitNone}
	}

	if !e.cfg.UnlimitedGridPositions() && positionCount >= e.cfg.MaxConsecutivePositions {
		return Decision{Exit: true, Reason: ExitMaxPositions}
	}

	if sessionEntry > 0 && e.cfg.Mode != config.ModeNeutral {
		side := SideLong
		if e.cfg.Mode == config.ModeShort {
			side = SideShort
		}
		targets := Targets{EntryPrice: sessionEntry, Side: side}
		if e.cfg.StopLossPercent > 0 {
			sl := e.cfg.StopLossPercent / 100
			if side == SideLong {
				targets.StopLoss = sessionEntry * (1 - sl)
			} else {
				targets.StopLoss = sessionEntry * (1 + sl)
			}
		}
		if e.cfg.TakeProfitPercent > 0 {
			tp := e.cfg.TakeProfitPercent / 100
			if side == SideLong {
				targets.TakeProfit = sessionEntry * (1 + tp)
			} else {
				targets.TakeProfit = sessionEntry * (1 - tp)
			}
		}
		// Stop-loss outranks take-profit at the session level.
		if targets.HasStopLoss() {
			if (side == SideLong && price <= targets.StopLoss) ||
				(side == SideShort && price >= targets.StopLoss) {
				return Decision{Exit: true, Reason: ExitStopLoss}
			}
		}
		if targets.HasTakeProfit() {
			if (side == SideLong && price >= targets.TakeProfit) ||
				(side == SideShort && price <= targets.TakeProfit) {
				return Decision{Exit: true, Reason: ExitTakeProfit}
			}
		}
	}

	if e.cfg.EnableRangeExitRule && e.cfg.RangeExitThresholdPercent > 0 {
		threshold := sess.Width() * e.cfg.RangeExitThresholdPercent / 100
		if price <= sess.LowerBound-threshold || price >= sess.UpperBound+threshold {
			return Decision{Exit: true, Reason: ExitRangeExit}
		}
	}

	return Decision{Reason: ExitNone}
}
