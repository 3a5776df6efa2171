package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/exchange"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/application/engine"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	exchangeName := flag.String("exchange", "", "exchange name (overrides config)")
	ticker := flag.String("ticker", "", "instrument ticker (overrides config)")
	gridSpacing := flag.Float64("grid-spacing", 0, "grid spacing as percent of center price")
	gridUpper := flag.Int("grid-upper", 0, "levels above center")
	gridLower := flag.Int("grid-lower", 0, "levels below center")
	perOrder := flag.Float64("per-order", 0, "quote amount per grid order")
	initialBalance := flag.Float64("initial-balance", 0, "session capital")
	stopPrice := flag.Float64("stop-price", 0, "halt the session when the mark price reaches this level (0 = unset)")
	pausePrice := flag.Float64("pause-price", 0, "pause new orders when the mark price reaches this level (0 = unset)")
	breakthrough := flag.Float64("breakthrough-threshold", 0, "regrid trigger as fraction of one spacing unit")
	disableDynamic := flag.Bool("disable-dynamic", false, "never recenter the ladder")
	maxOrders := flag.Int("max-orders", 0, "cap resting orders below the exchange limit (0 = exchange limit)")
	testMode := flag.Bool("test-mode", false, "run against the simulated exchange, no real orders")
	analyzeOnly := flag.Bool("analyze-only", false, "print the strategy analysis and exit")
	assumePrice := flag.Float64("assume-price", 2000, "center price assumed by --analyze-only")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print status as a table instead of one line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	applyFlagOverrides(cfg, flagOverrides{
		exchange:       *exchangeName,
		ticker:         *ticker,
		spacing:        *gridSpacing,
		upper:          *gridUpper,
		lower:          *gridLower,
		perOrder:       *perOrder,
		initialBalance: *initialBalance,
		stopPrice:      *stopPrice,
		pausePrice:     *pausePrice,
		breakthrough:   *breakthrough,
		disableDynamic: *disableDynamic,
	})

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	grid := cfg.DomainGrid()

	if *analyzeOnly {
		runAnalysis(grid, *assumePrice, notify.NewConsole(true))
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *testMode {
		if err := runTestMode(ctx, cfg, grid, *maxOrders, *table); err != nil {
			slog.Error("test mode failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("gridbot starting",
		"exchange", cfg.Exchange.Name,
		"ticker", grid.Ticker,
		"config", *configPath,
	)

	gateway, err := exchange.New(ctx, exchange.Options{
		BaseURL:   cfg.Exchange.BaseURL,
		StreamURL: cfg.Exchange.StreamURL,
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Symbol:    grid.Ticker,
	})
	if err != nil {
		slog.Error("gateway initialization failed", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	eng := engine.New(engine.Config{
		Grid:               grid,
		Exchange:           cfg.Exchange.Name,
		SessionID:          uuid.New().String(),
		MaxOrders:          *maxOrders,
		PriceCheckInterval: cfg.PriceCheckInterval(),
		StatusInterval:     cfg.StatusInterval(),
	}, gateway, store, notify.NewConsole(*table))

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("gridbot stopped cleanly")
}

type flagOverrides struct {
	exchange       string
	ticker         string
	spacing        float64
	upper          int
	lower          int
	perOrder       float64
	initialBalance float64
	stopPrice      float64
	pausePrice     float64
	breakthrough   float64
	disableDynamic bool
}

func applyFlagOverrides(cfg *config.Config, o flagOverrides) {
	if o.exchange != "" {
		cfg.Exchange.Name = o.exchange
	}
	if o.ticker != "" {
		cfg.Grid.Ticker = o.ticker
	}
	if o.spacing > 0 {
		cfg.Grid.SpacingPct = o.spacing
	}
	if o.upper > 0 {
		cfg.Grid.Upper = o.upper
	}
	if o.lower > 0 {
		cfg.Grid.Lower = o.lower
	}
	if o.perOrder > 0 {
		cfg.Grid.PerOrder = o.perOrder
	}
	if o.initialBalance > 0 {
		cfg.Grid.InitialBalance = o.initialBalance
	}
	if o.stopPrice > 0 {
		cfg.Grid.StopPrice = o.stopPrice
	}
	if o.pausePrice > 0 {
		cfg.Grid.PausePrice = o.pausePrice
	}
	if o.breakthrough > 0 {
		cfg.Grid.BreakthroughThreshold = o.breakthrough
	}
	if o.disableDynamic {
		f := false
		cfg.Grid.Dynamic = &f
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
