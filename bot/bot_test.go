package bot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridscalper/analysis"
	"gridscalper/config"
)

func botConfig(t *testing.T) *config.Config {
	cfg := gridConfig(config.ModeLong)
	cfg.CycleInterval = time.Hour
	cfg.ShutdownFlagFile = filepath.Join(t.TempDir(), ".close_now")
	cfg.EnableMarketPositionLogic = true
	return cfg
}

func TestBotShutdownFlagFile(t *testing.T) {
	cfg := botConfig(t)
	mock := newMockTrader()
	b := New(cfg, mock, nil, nil, nil, nil)

	require.NoError(t, os.WriteFile(cfg.ShutdownFlagFile, nil, 0o644))

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, mock.cancelAllCalls, "shutdown cancels all orders")
	assert.Len(t, mock.closedQty, 1, "shutdown closes the position")
	_, statErr := os.Stat(cfg.ShutdownFlagFile)
	assert.True(t, os.IsNotExist(statErr), "flag file is removed after the stop")
}

func TestBotContextCancelTearsDown(t *testing.T) {
	cfg := botConfig(t)
	mock := newMockTrader()
	b := New(cfg, mock, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mock.cancelAllCalls, 1)
}

func TestBotCycleUpdatesStatus(t *testing.T) {
	cfg := botConfig(t)
	mock := newMockTrader()
	b := New(cfg, mock, nil, nil, nil, nil)

	require.NoError(t, b.cycle())

	status := b.Status()
	assert.Equal(t, "BTCUSDT", status.Symbol)
	assert.Equal(t, 65000.0, status.Price)
	assert.Equal(t, string(GridActiveNoPosition), status.GridState)
	assert.Equal(t, 60000.0, status.GridLowerBound)
	assert.Equal(t, 70000.0, status.GridUpperBound)
	assert.Equal(t, string(MarketNoPosition), status.MarketState)
	assert.False(t, status.UpdatedAt.IsZero())
}

func TestBotGridNeutralOnlyGate(t *testing.T) {
	cfg := botConfig(t)
	cfg.GridBotNeutralOnly = true
	mock := newMockTrader()
	b := New(cfg, mock, nil, nil, nil, nil)

	assert.True(t, b.gridAllowed(), "no signal yet, grid may trade")

	b.marketTracker.OnSignal(signal(analysis.TrendUp, analysis.MomentumOverbought), 65000)
	assert.False(t, b.gridAllowed(), "directional momentum pauses the grid")

	b.marketTracker.OnSignal(signal(analysis.TrendUp, analysis.MomentumNeutral), 65000)
	assert.True(t, b.gridAllowed(), "neutral momentum resumes the grid")
}

func TestBotGridGateIgnoredWhenDisabled(t *testing.T) {
	cfg := botConfig(t)
	cfg.GridBotNeutralOnly = false
	mock := newMockTrader()
	b := New(cfg, mock, nil, nil, nil, nil)

	b.marketTracker.OnSignal(signal(analysis.TrendUp, analysis.MomentumOverbought), 65000)
	assert.True(t, b.gridAllowed())
}
