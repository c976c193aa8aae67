package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridscalper/config"
	"gridscalper/grid"
)

func evaluatorConfig() *config.Config {
	return &config.Config{
		Mode:                      config.ModeLong,
		TPMode:                    config.TPModePercentage,
		TakeProfitPercent:         5,
		StopLossPercent:           2,
		EnableRangeExitRule:       true,
		RangeExitThresholdPercent: 75,
		MaxConsecutivePositions:   3,
	}
}

func testSession(t *testing.T) *grid.Session {
	t.Helper()
	sess, err := grid.NewSession(65000, 10000, 5)
	require.NoError(t, err)
	return sess
}

func TestEvaluateInactiveSession(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())

	d := e.Evaluate(65000, nil, 10, 65000)
	assert.False(t, d.Exit)
	assert.Equal(t, ExitNone, d.Reason)

	sess := testSession(t)
	sess.Clear()
	d = e.Evaluate(65000, sess, 10, 65000)
	assert.False(t, d.Exit)
}

func TestEvaluateMaxPositions(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())
	sess := testSession(t)

	// Counts 1 and 2 pass, the third open trips the cap on the same
	// evaluation that observes it.
	for count := 1; count <= 2; count++ {
		d := e.Evaluate(65000, sess, count, 0)
		assert.False(t, d.Exit, "count %d must not reset", count)
	}
	d := e.Evaluate(65000, sess, 3, 0)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitMaxPositions, d.Reason)
}

func TestEvaluateMaxPositionsUnlimited(t *testing.T) {
	cfg := evaluatorConfig()
	cfg.MaxConsecutivePositions = config.Unlimited
	e := NewEvaluator(cfg)
	sess := testSession(t)

	d := e.Evaluate(65000, sess, 1000, 0)
	assert.False(t, d.Exit)
}

func TestEvaluatePriorityOrder(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())
	sess := testSession(t)

	// Price far below: stop-loss, take-profit and range-exit all hold,
	// and the counter is at the cap. Max positions wins.
	d := e.Evaluate(52500, sess, 3, 65000)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitMaxPositions, d.Reason)

	// Without the counter, stop-loss outranks range-exit.
	d = e.Evaluate(52500, sess, 0, 65000)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitStopLoss, d.Reason)
}

func TestEvaluateStopLossLong(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())
	sess := testSession(t)

	entry := 65000.0
	slPrice := entry * 0.98 // 63700

	d := e.Evaluate(slPrice-1, sess, 0, entry)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitStopLoss, d.Reason)

	d = e.Evaluate(slPrice+1, sess, 0, entry)
	assert.False(t, d.Exit)
}

func TestEvaluateTakeProfitLong(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())
	sess := testSession(t)

	entry := 65000.0
	tpPrice := entry * 1.05 // 68250

	d := e.Evaluate(tpPrice+1, sess, 0, entry)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitTakeProfit, d.Reason)

	d = e.Evaluate(tpPrice-1, sess, 0, entry)
	assert.False(t, d.Exit)
}

func TestEvaluateShortMode(t *testing.T) {
	cfg := evaluatorConfig()
	cfg.Mode = config.ModeShort
	e := NewEvaluator(cfg)
	sess := testSession(t)

	entry := 65000.0

	d := e.Evaluate(entry*1.02+1, sess, 0, entry)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitStopLoss, d.Reason)

	d = e.Evaluate(entry*0.95-1, sess, 0, entry)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitTakeProfit, d.Reason)
}

func TestEvaluateNeutralModeSkipsPercentageRules(t *testing.T) {
	cfg := evaluatorConfig()
	cfg.Mode = config.ModeNeutral
	e := NewEvaluator(cfg)
	sess := testSession(t)

	// A drop that would trip the long stop-loss does nothing in neutral
	// mode, until it escapes far enough for the range exit.
	d := e.Evaluate(63000, sess, 0, 65000)
	assert.False(t, d.Exit)
}

func TestEvaluateNoOpenPositionSkipsPercentageRules(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())
	sess := testSession(t)

	d := e.Evaluate(63000, sess, 0, 0)
	assert.False(t, d.Exit)
}

func TestEvaluateRangeExitBoundaries(t *testing.T) {
	cfg := evaluatorConfig()
	// Isolate the range rule.
	cfg.TakeProfitPercent = 0
	cfg.StopLossPercent = 0
	e := NewEvaluator(cfg)
	sess := testSession(t)
	// Bounds [60000, 70000], width 10000, threshold 75% -> trigger lines
	// at 52500 and 77500.

	tests := []struct {
		price float64
		exit  bool
	}{
		{52500, true},  // lower line inclusive
		{52501, false}, // one tick inside
		{52499, true},
		{77500, true}, // upper line inclusive
		{77499, false},
		{77501, true},
		{65000, false},
	}
	for _, tt := range tests {
		d := e.Evaluate(tt.price, sess, 0, 0)
		assert.Equal(t, tt.exit, d.Exit, "price %.0f", tt.price)
		if tt.exit {
			assert.Equal(t, ExitRangeExit, d.Reason, "price %.0f", tt.price)
		}
	}
}

func TestEvaluateRangeExitDisabled(t *testing.T) {
	cfg := evaluatorConfig()
	cfg.EnableRangeExitRule = false
	e := NewEvaluator(cfg)
	sess := testSession(t)

	d := e.Evaluate(10000, sess, 0, 0)
	assert.False(t, d.Exit)
}

func TestEvaluateIdempotent(t *testing.T) {
	e := NewEvaluator(evaluatorConfig())
	sess := testSession(t)

	first := e.Evaluate(52500, sess, 2, 65000)
	second := e.Evaluate(52500, sess, 2, 65000)
	assert.Equal(t, first, second)
}
