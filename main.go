package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiwiquant/kiwitrader/broker"
	"github.com/kiwiquant/kiwitrader/config"
	"github.com/kiwiquant/kiwitrader/data"
	"github.com/kiwiquant/kiwitrader/engine"
	"github.com/kiwiquant/kiwitrader/monitor"
	"github.com/kiwiquant/kiwitrader/regime"
	"github.com/kiwiquant/kiwitrader/risk"
	"github.com/kiwiquant/kiwitrader/selector"
	"github.com/kiwiquant/kiwitrader/server"
	"github.com/kiwiquant/kiwitrader/strategy"
)

const (
	perfLookbackWindow = 50
	riskFreeRate       = 0.0
	maxEvents          = 200
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	trainOnly := flag.Bool("train", false, "train the regime model and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	log.Logger = logger

	logger.Info().
		Str("symbol", cfg.Symbol).
		Str("timeframe", cfg.Timeframe).
		Bool("live", cfg.Live).
		Bool("mock_broker", cfg.UseMockBroker).
		Msg("starting kiwitrader")

	detector := regime.NewDetector(cfg.ModelPath, logger)
	perf := monitor.New(perfLookbackWindow, riskFreeRate)
	sel := selector.New(strategy.All(), detector, perf, logger)
	riskMgr := risk.NewManager(cfg.InitialCapital, cfg.MaxRiskPerTrade, cfg.MaxPositionSize, cfg.MaxPortfolioRisk, logger)

	var brk broker.Broker
	if cfg.UseMockBroker {
		brk = broker.NewMockBroker(cfg.InitialCapital)
	} else {
		brk = broker.NewAlpacaBroker(cfg.APIKey, cfg.APISecret, cfg.BrokerURL())
	}
	source := data.NewAlpacaSource(cfg.APIKey, cfg.APISecret, logger)

	events := engine.NewEventLog(maxEvents)
	eng := engine.New(cfg, source, brk, detector, sel, perf, riskMgr, events, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *trainOnly {
		if err := eng.TrainDetector(ctx); err != nil {
			log.Fatal().Err(err).Msg("regime model training failed")
		}
		logger.Info().Str("model", cfg.ModelPath).Msg("regime model trained")
		return
	}

	srv := server.New(cfg.HTTPPort, eng, brk, logger)
	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start(ctx) }()
	go func() { errCh <- eng.Run(ctx) }()

	remaining := 2
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("component failed")
		}
		remaining--
		stop()
	}

	// Both components stop once the context is canceled; collect their
	// results before exiting.
	for i := 0; i < remaining; i++ {
		if err := <-errCh; err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}
	logger.Info().Msg("kiwitrader stopped")
}
