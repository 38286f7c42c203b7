package live

import (
	"context"
	"testing"
	"time"

	"winter/internal/engine"
	"winter/internal/model"
	"winter/internal/portfolio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receiptTime = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func TestParseTick(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    model.Tick
		ok      bool
	}{
		{
			name:    "plain numbers",
			payload: `{"Symbol":"AAPL","Price":101.5,"Size":10}`,
			want:    model.Tick{Symbol: "AAPL", Price: 101.5, Volume: 10},
			ok:      true,
		},
		{
			name:    "extra fields ignored",
			payload: `{"Symbol":"MSFT","Price":410.25,"Size":5,"Venue":"P","SipComplete":true}`,
			want:    model.Tick{Symbol: "MSFT", Price: 410.25, Volume: 5},
			ok:      true,
		},
		{
			name:    "missing size defaults to zero",
			payload: `{"Symbol":"AAPL","Price":100}`,
			want:    model.Tick{Symbol: "AAPL", Price: 100, Volume: 0},
			ok:      true,
		},
		{
			name:    "missing symbol",
			payload: `{"Price":100,"Size":1}`,
			ok:      false,
		},
		{
			name:    "missing price",
			payload: `{"Symbol":"AAPL","Size":1}`,
			ok:      false,
		},
		{
			name:    "negative price",
			payload: `{"Symbol":"AAPL","Price":-5,"Size":1}`,
			ok:      false,
		},
		{
			name:    "negative size",
			payload: `{"Symbol":"AAPL","Price":100,"Size":-1}`,
			ok:      false,
		},
		{
			name:    "not json",
			payload: `Symbol=AAPL Price=100`,
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick, ok := ParseTick([]byte(tt.payload), receiptTime)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.want.Symbol, tick.Symbol)
			assert.Equal(t, tt.want.Price, tick.Price)
			assert.Equal(t, tt.want.Volume, tick.Volume)
			assert.Equal(t, receiptTime.UnixMicro(), tick.TimestampUS)
		})
	}
}

// stubSource delivers a fixed tick slice then waits for cancellation.
type stubSource struct {
	ticks []model.Tick
}

func (s *stubSource) Run(ctx context.Context, out func(model.Tick)) error {
	for _, tick := range s.ticks {
		out(tick)
	}
	<-ctx.Done()
	return nil
}

func TestDriverFeedsEngineFromSource(t *testing.T) {
	pf := portfolio.New(10_000)
	eng := engine.New(pf, engine.Params{TickCapacity: 64, OrderCapacity: 64, BatchSize: 8})

	source := &stubSource{ticks: []model.Tick{
		{Symbol: "AAPL", Price: 100, Volume: 1, TimestampUS: 1},
		{Symbol: "AAPL", Price: 101, Volume: 1, TimestampUS: 2},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(eng, source).Run(ctx) }()

	// The stub pushes its ticks before blocking on ctx, and the engine's
	// Stop (run by the driver on the way out) drains the ring, so the
	// cancellation order does not race the feed.
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop on cancellation")
	}

	price, ok := eng.LatestPrice("AAPL")
	require.True(t, ok, "engine must have consumed the stubbed ticks")
	require.Equal(t, 101.0, price)
}
