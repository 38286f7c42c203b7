package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultEndpoint, opts.socketEndpoint)
	assert.Equal(t, defaultBalance, opts.initialBalance)
	assert.Equal(t, defaultConfigPath, opts.configPath)
	assert.Equal(t, "live", opts.mode)
}

func TestParseArgsBacktestWithStrategy(t *testing.T) {
	opts, err := parseArgs([]string{"--backtest", "StatArbitrage", "data.csv"})
	require.NoError(t, err)
	assert.Equal(t, "backtest", opts.mode)
	assert.Equal(t, "StatArbitrage", opts.strategyID)
	assert.Equal(t, "data.csv", opts.csvPath)
}

func TestParseArgsBacktestWithoutStrategy(t *testing.T) {
	opts, err := parseArgs([]string{"--backtest", "data.csv", "--initial-balance", "250000"})
	require.NoError(t, err)
	assert.Equal(t, "backtest", opts.mode)
	assert.Empty(t, opts.strategyID)
	assert.Equal(t, "data.csv", opts.csvPath)
	assert.Equal(t, 250_000.0, opts.initialBalance)
}

func TestParseArgsTradeMode(t *testing.T) {
	opts, err := parseArgs([]string{"--trade", "MeanReversion", "ticks.csv", "--config", "my.conf"})
	require.NoError(t, err)
	assert.Equal(t, "trade", opts.mode)
	assert.Equal(t, "MeanReversion", opts.strategyID)
	assert.Equal(t, "ticks.csv", opts.csvPath)
	assert.Equal(t, "my.conf", opts.configPath)
	assert.True(t, opts.configExplicit)
}

func TestParseArgsErrors(t *testing.T) {
	_, err := parseArgs([]string{"--initial-balance"})
	require.Error(t, err)

	_, err = parseArgs([]string{"--initial-balance", "not-a-number"})
	require.Error(t, err)

	_, err = parseArgs([]string{"--frobnicate"})
	require.Error(t, err)

	_, err = parseArgs([]string{"--backtest"})
	require.Error(t, err)
}
