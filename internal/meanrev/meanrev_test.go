package meanrev

import (
	"testing"

	"winter/internal/model"
	"winter/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tick(symbol string, price float64, volume int32) model.Tick {
	return model.Tick{Symbol: symbol, Price: price, Volume: volume}
}

func TestZScoreZeroForConstantSeries(t *testing.T) {
	r := newRollingStats(20)
	for i := 0; i < 25; i++ {
		r.add(100)
	}
	require.True(t, r.full())
	require.Zero(t, r.stddev())
	require.Zero(t, r.zScore(100), "constant-price series must have z-score exactly 0")
}

func TestZScoreZeroWhileUnderfilled(t *testing.T) {
	r := newRollingStats(20)
	for i := 0; i < 10; i++ {
		r.add(float64(100 + i))
	}
	require.Zero(t, r.zScore(200))
}

func TestRollingStatsWindowEviction(t *testing.T) {
	r := newRollingStats(3)
	for _, p := range []float64{1, 2, 3, 4} {
		r.add(p)
	}
	require.InDelta(t, 3.0, r.mean(), 1e-12) // window holds 2, 3, 4
}

func TestRSIBounds(t *testing.T) {
	up := newRSI(14)
	for i := 0; i <= 20; i++ {
		up.update(float64(100 + i))
	}
	require.True(t, up.ready())
	assert.Equal(t, 100.0, up.value(), "monotonic gains pin RSI at 100")

	down := newRSI(14)
	for i := 0; i <= 20; i++ {
		down.update(float64(100 - i))
	}
	assert.Less(t, down.value(), 5.0)
}

func TestVolumeOscillatorSign(t *testing.T) {
	v := newVolumeOscillator(14, 28)
	for i := 0; i < 28; i++ {
		v.update(100)
	}
	require.True(t, v.ready())
	require.Zero(t, v.value())

	// A burst of recent volume drives the fast average above the slow.
	for i := 0; i < 14; i++ {
		v.update(400)
	}
	assert.Greater(t, v.value(), volOscExtreme)
}

func TestNoSignalBeforeWindowFull(t *testing.T) {
	c := New()
	for i := 0; i < defaultWindow-1; i++ {
		signals := c.ProcessTick(tick("AAPL", 100, 10))
		require.Empty(t, signals)
	}
}

func TestExitSignalNearMean(t *testing.T) {
	c := New()
	// A gently oscillating series keeps |z| small but stddev nonzero.
	prices := []float64{100, 101, 100, 99, 100, 101, 100, 99, 100, 101,
		100, 99, 100, 101, 100, 99, 100, 101, 100, 99}
	for _, p := range prices {
		c.ProcessTick(tick("AAPL", p, 10))
	}

	signals := c.ProcessTick(tick("AAPL", 100, 10))
	require.Len(t, signals, 1)
	assert.Equal(t, model.SignalExit, signals[0].Kind)
	assert.Equal(t, 100.0, signals[0].Price)
}

func TestEntryBlockedWithoutIndicatorConfirmation(t *testing.T) {
	c := New()
	// Fill the z-score window, then spike the price: z exceeds the entry
	// threshold but the 200-period trend filter is not yet ready, so no
	// entry signal may fire.
	for i := 0; i < defaultWindow; i++ {
		c.ProcessTick(tick("AAPL", 100+float64(i%3), 10))
	}
	signals := c.ProcessTick(tick("AAPL", 130, 10))
	for _, s := range signals {
		require.NotEqual(t, model.SignalSell, s.Kind)
		require.NotEqual(t, model.SignalBuy, s.Kind)
	}
}

func TestWarmupEmitsNothingAndFillsWindow(t *testing.T) {
	c := New()
	history := make([]model.Tick, 0, 30)
	for i := 0; i < 30; i++ {
		history = append(history, tick("AAPL", 100+float64(i%5), 10))
	}
	c.Warmup(history)

	// First live tick near the (warm) mean exits immediately instead of
	// waiting 20 ticks for the window to fill.
	signals := c.ProcessTick(tick("AAPL", 102, 10))
	require.Len(t, signals, 1)
	assert.Equal(t, model.SignalExit, signals[0].Kind)
}

func TestConfigureOverrides(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(strategy.Config{
		"window":          "10",
		"entry_threshold": "1.5",
		"exit_threshold":  "0.3",
		"enabled":         "false",
	}))
	assert.Equal(t, 10, c.window)
	assert.Equal(t, 1.5, c.entryThreshold)
	assert.Equal(t, 0.3, c.exitThreshold)
	assert.False(t, c.IsEnabled())
}
