package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sahilm88/orbit/internal/broker"
	"github.com/sahilm88/orbit/internal/config"
	"github.com/sahilm88/orbit/internal/dashboard"
	"github.com/sahilm88/orbit/internal/execution"
	"github.com/sahilm88/orbit/internal/ledger"
	"github.com/sahilm88/orbit/internal/market"
	"github.com/sahilm88/orbit/internal/mock"
	"github.com/sahilm88/orbit/internal/securities"
)

const defaultSpot = 24000

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Optional .env for ${VAR} expansion inside the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.Infof("Starting orbit in %s mode", cfg.Environment.Mode)

	loc := cfg.Location()

	// Simulated quote and order transport. The instrument universe itself
	// comes from the on-disk security master.
	sim := mock.NewFeed(cfg.Market.Underlying, cfg.Market.StrikeInterval, cfg.Market.LotSize, defaultSpot)

	var instruments broker.InstrumentProvider = broker.NewRetryProvider(
		broker.NewCSVProvider(cfg.Cache.SecurityMasterPath), logger)
	if cfg.Cache.FallbackMasterPath != "" {
		instruments = broker.NewFallbackProvider(
			instruments, broker.NewCSVProvider(cfg.Cache.FallbackMasterPath), logger)
	}
	feed := broker.NewCircuitBreakerFeed(broker.ComposedFeed{
		InstrumentProvider: instruments,
		QuoteProvider:      sim,
	}, logger)

	cache, err := securities.NewCache(securities.Config{
		Path:     cfg.Cache.Path,
		Validity: cfg.CacheValidity(),
		Feed:     feed,
		Params: market.Params{
			Underlying:    cfg.Market.Underlying,
			Family:        cfg.Market.InstrumentFamily,
			ExpiryWeekday: cfg.ExpiryWeekday(),
			CutoffHour:    cfg.Market.ExpiryCutoffHour,
		},
		StrikeInterval: cfg.Market.StrikeInterval,
		Location:       loc,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create securities cache: %v", err)
	}
	if err := cache.Init(); err != nil {
		logger.Fatalf("Failed to initialize securities cache: %v", err)
	}

	liveLedger, err := ledger.New(ledger.Config{
		Mode: ledger.ModeLive, Path: cfg.Ledger.LivePath, Location: loc, Logger: logger,
	})
	if err != nil {
		logger.Fatalf("Failed to open live ledger: %v", err)
	}
	paperLedger, err := ledger.New(ledger.Config{
		Mode: ledger.ModePaper, Path: cfg.Ledger.PaperPath, Location: loc, Logger: logger,
	})
	if err != nil {
		logger.Fatalf("Failed to open paper ledger: %v", err)
	}

	executor, err := execution.New(execution.Config{
		Cache:     cache,
		Live:      liveLedger,
		Paper:     paperLedger,
		Quotes:    feed,
		Placer:    sim,
		PaperMode: cfg.IsPaperTrading(),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create executor: %v", err)
	}

	server := dashboard.NewServer(dashboard.Config{
		Port:     cfg.Dashboard.Port,
		Cache:    cache,
		Executor: executor,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received %v, shutting down", sig)
	case err := <-errCh:
		logger.Fatalf("Dashboard server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Dashboard shutdown failed")
	}
	logger.Info("Stopped")
}
