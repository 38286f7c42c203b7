// Package live implements the live driver: it subscribes to an
// external pub/sub tick endpoint, parses the JSON wire ticks, and drives
// the engine. The wire protocol beyond "JSON objects with Symbol, Price,
// Size" is out of scope; the transport contract is the TickSource
// interface, with a websocket-backed implementation as the one concrete
// dialer.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"winter/internal/engine"
	"winter/internal/model"
	"winter/pkg/objpool"
	"winter/pkg/websocket"

	"github.com/yanun0323/logs"
)

// poolBlock is the growth unit of the per-source tick pool.
const poolBlock = 1024

// TickSource delivers parsed ticks until ctx is cancelled. Implementations
// own their transport; Run returns only on cancellation or a fatal
// subscription error.
type TickSource interface {
	Run(ctx context.Context, out func(model.Tick)) error
}

// wireTick is the wire format: Symbol and Price are required, Size is
// optional (volume 0 when absent), everything else is ignored. Numbers decode through json.Number so
// exchange-style decimal strings and raw numbers both parse exactly.
type wireTick struct {
	Symbol string      `json:"Symbol"`
	Price  json.Number `json:"Price"`
	Size   json.Number `json:"Size"`
}

// ParseTick decodes one wire payload into a Tick, stamping it with the
// receipt time. A malformed payload, a missing Symbol or Price, or an
// invalid Size is an input error: reported, not fatal.
func ParseTick(payload []byte, receivedAt time.Time) (model.Tick, bool) {
	var tick model.Tick
	ok := parseTickInto(payload, receivedAt, &tick)
	return tick, ok
}

func parseTickInto(payload []byte, receivedAt time.Time, tick *model.Tick) bool {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var w wireTick
	if err := dec.Decode(&w); err != nil {
		return false
	}
	if w.Symbol == "" || w.Price == "" {
		return false
	}

	price, err := model.ParseDecimalField(w.Price.String())
	if err != nil || price <= 0 {
		return false
	}

	var volume int64
	if w.Size != "" {
		volume, err = w.Size.Int64()
		if err != nil || volume < 0 {
			return false
		}
	}

	tick.Symbol = w.Symbol
	tick.Price = price
	tick.Volume = int32(volume)
	tick.TimestampUS = receivedAt.UnixMicro()
	return true
}

// WSSource subscribes to a websocket pub/sub endpoint and parses each
// frame as one wire tick.
type WSSource struct {
	url string
}

// NewWSSource constructs a source for the given ws:// endpoint.
func NewWSSource(url string) *WSSource {
	return &WSSource{url: url}
}

// Run dials and pumps ticks into out until ctx is cancelled, redialing
// with backoff on disconnect. Unparseable frames are counted and skipped.
// Decoded ticks are staged through a per-source pool and handed to out by
// value, so the hot path stops allocating once the pool has grown to the
// feed's steady rate.
func (s *WSSource) Run(ctx context.Context, out func(model.Tick)) error {
	var badFrames uint64
	pool := objpool.New[model.Tick](poolBlock)
	client := websocket.NewClient(websocket.Option{
		URL: s.url,
		OnMessage: func(payload []byte) {
			tick := pool.Get()
			defer pool.Put(tick)
			if !parseTickInto(payload, time.Now().UTC(), tick) {
				badFrames++
				if badFrames%10_000 == 1 {
					logs.Errorf("live: skipped %d unparseable frames", badFrames)
				}
				return
			}
			out(*tick)
		},
		OnDisconnect: func(err error) {
			if ctx.Err() == nil {
				logs.Infof("live: feed disconnected, reconnecting: %v", err)
			}
		},
	})
	err := client.Run(ctx)
	if err == context.Canceled || ctx.Err() != nil {
		return nil
	}
	return err
}

// Driver feeds a TickSource into the engine until the context is
// cancelled.
type Driver struct {
	engine *engine.Engine
	source TickSource

	// Cores for the engine workers; negative leaves them unpinned.
	StrategyCore  int
	ExecutionCore int
}

// New constructs a live Driver over an already-assembled engine.
func New(eng *engine.Engine, source TickSource) *Driver {
	return &Driver{engine: eng, source: source, StrategyCore: -1, ExecutionCore: -1}
}

// Run starts the engine workers, pumps the source until ctx is cancelled,
// then stops the engine. Pushes are serialized on the source's delivery
// goroutine, satisfying the tick ring's single-producer contract.
func (d *Driver) Run(ctx context.Context) error {
	d.engine.Start(d.StrategyCore, d.ExecutionCore)
	defer d.engine.Stop()

	logs.Info("live: engine started, waiting for market data")
	return d.source.Run(ctx, d.engine.ProcessTick)
}
