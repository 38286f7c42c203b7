// Command winter is the driver binary: live simulation against a pub/sub
// tick endpoint, or replay of a historical tick CSV in deterministic
// backtest mode (--backtest) and parallel trade mode (--trade).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"winter/internal/config"
	"winter/internal/engine"
	"winter/internal/live"
	"winter/internal/meanrev"
	"winter/internal/perf"
	"winter/internal/portfolio"
	"winter/internal/replay"
	"winter/internal/statarb"
	"winter/internal/strategy"

	"github.com/yanun0323/logs"
)

const (
	defaultEndpoint   = "tcp://127.0.0.1:5555"
	defaultBalance    = 5_000_000.0
	defaultConfigPath = "winter_strategies.conf"
)

const usageText = `Usage: winter [options]

Options:
  --socket-endpoint <url>           Pub/sub tick source for live mode (default ` + defaultEndpoint + `)
  --initial-balance <float>         Starting cash (default 5000000)
  --backtest [<strategy_id>] <csv>  Deterministic replay of a tick CSV
  --trade [<strategy_id>] <csv>     Parallel replay through the live pipeline
  --config <file>                   Strategy configuration file (default ` + defaultConfigPath + `)
  --help                            Show this message

Without --backtest or --trade, winter runs live against the socket endpoint.
`

type options struct {
	socketEndpoint string
	initialBalance float64
	configPath     string
	configExplicit bool

	mode       string // "live", "backtest", "trade"
	strategyID string
	csvPath    string
}

// parseArgs hand-parses os.Args-style arguments: --backtest and --trade
// take an optional strategy id followed by a required CSV path, which the
// flag package cannot express.
func parseArgs(args []string) (options, error) {
	opts := options{
		socketEndpoint: defaultEndpoint,
		initialBalance: defaultBalance,
		configPath:     defaultConfigPath,
		mode:           "live",
	}

	next := func(i *int, flag string) (string, error) {
		*i++
		if *i >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--help", "-h":
			fmt.Print(usageText)
			os.Exit(0)

		case "--socket-endpoint":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			opts.socketEndpoint = v

		case "--initial-balance":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			if _, err := fmt.Sscanf(v, "%f", &opts.initialBalance); err != nil || opts.initialBalance <= 0 {
				return opts, fmt.Errorf("invalid --initial-balance %q", v)
			}

		case "--config":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			opts.configPath = v
			opts.configExplicit = true

		case "--backtest", "--trade":
			opts.mode = strings.TrimPrefix(arg, "--")
			first, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			// One value: CSV path. Two values: strategy id then CSV path.
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				opts.strategyID = first
				i++
				opts.csvPath = args[i]
			} else {
				opts.csvPath = first
			}

		default:
			return opts, fmt.Errorf("unknown argument %q", arg)
		}
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprint(os.Stderr, usageText)
		log.Fatalf("winter: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("winter: %v", err)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if opts.configExplicit {
			return err
		}
		logs.Infof("winter: no config file at %s, using defaults", opts.configPath)
		cfg = config.File{}
	}

	registry := strategy.NewRegistry()
	registry.Register(meanrev.StrategyID, meanrev.NewStrategy)
	registry.Register(statarb.StrategyID, statarb.NewStrategy)
	factory := strategy.NewFactory(registry)

	strategies, err := buildStrategies(factory, registry, cfg, opts)
	if err != nil {
		return err
	}

	pf := portfolio.New(opts.initialBalance)
	eng := engine.New(pf, engine.Params{
		TickCapacity:  cfg.GetInt("engine.tick_queue_size", 65536),
		OrderCapacity: cfg.GetInt("engine.order_queue_size", 32768),
		BatchSize:     cfg.GetInt("engine.batch_size", 256),
	})
	for _, s := range strategies {
		eng.AddStrategy(s)
	}
	defer shutdownStrategies(strategies)

	switch opts.mode {
	case "backtest":
		return runReplay(eng, strategies, cfg, opts, false)
	case "trade":
		return runReplay(eng, strategies, cfg, opts, true)
	default:
		return runLive(eng, opts)
	}
}

// buildStrategies instantiates either the requested strategy or every
// registered one, applying each strategy's config section. Backtest mode
// forces the stat-arb core inline so replays stay deterministic.
func buildStrategies(factory *strategy.Factory, registry *strategy.Registry, cfg config.File, opts options) ([]strategy.Strategy, error) {
	ids := registry.IDs()
	if opts.strategyID != "" {
		ids = []string{opts.strategyID}
	}

	var out []strategy.Strategy
	for _, id := range ids {
		section := cfg.Section(strings.ToLower(id))
		if id == statarb.StrategyID {
			if _, ok := section["pairs"]; !ok {
				section["pairs"] = defaultPairs
			}
			if opts.mode == "backtest" {
				// Inline processing keeps replays deterministic (replay determinism depends on it).
				section["workers"] = "0"
			} else if _, ok := section["workers"]; !ok {
				workers := runtime.NumCPU()
				if workers > 16 {
					workers = 16
				}
				section["workers"] = strconv.Itoa(workers)
			}
		}
		s, err := factory.Create(id, section)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		logs.Infof("winter: loaded strategy %s", id)
	}
	return out, nil
}

func shutdownStrategies(strategies []strategy.Strategy) {
	for _, s := range strategies {
		if err := s.Shutdown(); err != nil {
			logs.Errorf("winter: strategy %s shutdown: %v", s.ID(), err)
		}
	}
}

func runReplay(eng *engine.Engine, strategies []strategy.Strategy, cfg config.File, opts options, parallel bool) error {
	rcfg := replay.DefaultConfig(opts.csvPath, opts.initialBalance)
	rcfg.WarmupTicks = cfg.GetInt("replay.warmup_ticks", 0)
	rcfg.RiskFreeRate = cfg.GetFloat("replay.risk_free_rate", 0)
	rcfg.StrategyCore = cfg.GetInt("engine.strategy_core", -1)
	rcfg.ExecutionCore = cfg.GetInt("engine.execution_core", -1)

	driver := replay.New(eng, strategies, rcfg)
	var (
		metrics perf.Metrics
		err     error
	)
	if parallel {
		metrics, err = driver.RunParallel()
	} else {
		metrics, err = driver.Run()
	}
	if err != nil {
		return err
	}

	snap := eng.Metrics().Snapshot()
	logs.Infof("winter: ticks dropped %d, orders dropped %d, oversells reconciled %d",
		snap.TickDrops, snap.OrderDrops, snap.OversellCount)

	fmt.Printf("=== Backtest Results ===\n")
	fmt.Printf("Initial Balance: $%.2f\n", opts.initialBalance)
	fmt.Printf("Final Balance:   $%.2f\n", eng.Portfolio().TotalValue())
	fmt.Printf("Total Return:    %.2f%%\n", metrics.TotalReturn*100)
	fmt.Printf("Sharpe Ratio:    %.4f\n", metrics.SharpeRatio)
	fmt.Printf("Max Drawdown:    %.2f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("Win Rate:        %.2f%%\n", metrics.WinRate*100)
	fmt.Printf("Profit Factor:   %.4f\n", metrics.ProfitFactor)
	fmt.Printf("Total Trades:    %d\n", metrics.TotalTrades)
	return nil
}

func runLive(eng *engine.Engine, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint := opts.socketEndpoint
	// The historical default is a tcp:// endpoint; the subscriber speaks
	// websocket, so rewrite the scheme.
	if strings.HasPrefix(endpoint, "tcp://") {
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "tcp://")
	}

	logs.Infof("winter: connecting to market data at %s", endpoint)
	driver := live.New(eng, live.NewWSSource(endpoint))
	if err := driver.Run(ctx); err != nil {
		return err
	}

	pf := eng.Portfolio()
	fmt.Printf("=== Simulation Results ===\n")
	fmt.Printf("Initial Balance: $%.2f\n", opts.initialBalance)
	fmt.Printf("Final Balance:   $%.2f\n", pf.TotalValue())
	fmt.Printf("P&L:             $%.2f\n", pf.TotalValue()-opts.initialBalance)
	fmt.Printf("Trades:          %d\n", pf.TradeCount())
	return nil
}

// defaultPairs is the cointegrated pair universe used when the config
// file does not declare its own, spanning banking, technology, energy,
// mining, consumer, retail, pharma, telecom, automotive, and ETFs.
const defaultPairs = "JPM:BAC:Financial;C:WFC:Financial;GS:MS:Financial;ITUB:ITSA:Financial;" +
	"AAPL:MSFT:Technology;GOOGL:FB:Technology;AMD:NVDA:Technology;INTC:TXN:Technology;" +
	"XOM:CVX:Energy;BP:SHEL:Energy;COP:MRO:Energy;SLB:HAL:Energy;" +
	"VALE:BHP:Materials;GOLD:NEM:Materials;RIO:SCCO:Materials;" +
	"PG:CL:Consumer;KO:PEP:Consumer;MO:PM:Consumer;" +
	"WMT:TGT:Retail;HD:LOW:Retail;" +
	"JNJ:PFE:Healthcare;MRK:BMY:Healthcare;ABBV:LLY:Healthcare;" +
	"T:VZ:Telecommunications;TMUS:VZ:Telecommunications;" +
	"F:GM:Automotive;TM:NSANY:Automotive;" +
	"SPY:IVV:ETF;QQQ:XLK:ETF;XLE:VDE:ETF"
