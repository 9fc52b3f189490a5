// Package main wires and runs the Aurum control plane: candle ingestion,
// the signal pipeline, the opportunity scanner, execution governance, the
// broker bridge, the DXY context service, the predictive report generator,
// the periodic scheduler, and the operator-facing API server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/api"
	"github.com/atlas-desktop/aurum-control-plane/internal/broker"
	"github.com/atlas-desktop/aurum-control-plane/internal/config"
	"github.com/atlas-desktop/aurum-control-plane/internal/dxy"
	"github.com/atlas-desktop/aurum-control-plane/internal/events"
	"github.com/atlas-desktop/aurum-control-plane/internal/execution"
	"github.com/atlas-desktop/aurum-control-plane/internal/features"
	"github.com/atlas-desktop/aurum-control-plane/internal/governance"
	"github.com/atlas-desktop/aurum-control-plane/internal/ingest"
	"github.com/atlas-desktop/aurum-control-plane/internal/metrics"
	"github.com/atlas-desktop/aurum-control-plane/internal/modelregistry"
	"github.com/atlas-desktop/aurum-control-plane/internal/pipeline"
	"github.com/atlas-desktop/aurum-control-plane/internal/predictive"
	"github.com/atlas-desktop/aurum-control-plane/internal/regime"
	"github.com/atlas-desktop/aurum-control-plane/internal/rules"
	"github.com/atlas-desktop/aurum-control-plane/internal/scanner"
	"github.com/atlas-desktop/aurum-control-plane/internal/scheduler"
	"github.com/atlas-desktop/aurum-control-plane/internal/scoring"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/internal/workers"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	jobIngestAndScan    = "@every 60s"
	jobDXYRefresh       = "@every 30s"
	jobScannerAutoSel   = "@every 60s"
	jobPredictiveRun    = "@every 6h"
	jobTrainModelsNoop  = "@every 24h"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml (optional)")
	logLevel := flag.String("log-level", "", "override AURUM_LOG_LEVEL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		panic(err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting aurum control plane",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("db", cfg.DBPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("opening database failed", zap.Error(err))
	}
	defer db.Close()

	candles := store.NewCandleRepository(db)
	signals := store.NewSignalRepository(db)
	execEvents := store.NewExecutionEventRepository(db)
	predictiveReports := store.NewPredictiveReportRepository(db)
	modelRegistryRepo := store.NewModelRegistryRepository(db)
	settingsRepo := store.NewSettingsRepository(db)

	settingsSvc := settings.New(logger, settingsRepo)

	bridgeAddr := cfg.MT5ConnectionActive
	var bridge *broker.Client
	if bridgeAddr != "" {
		bridge = broker.New(logger, bridgeAddr)
	}

	// Signal pipeline: feature extractor -> regime classifier -> rule
	// analyzers -> model registry cache -> scorer.
	extractor := features.New()
	classifier := regime.New(logger, regime.DefaultConfig())
	killzone := rules.NewKillZoneClock()
	smc := rules.NewSMCAnalyzer(nil)
	volumeProfile := rules.NewVolumeProfileAnalyzer(nil)
	priceAction := rules.NewPriceActionAnalyzer(nil)

	dxySvc := dxy.New(logger, settingsSvc, candles, dxyProviders()...)
	dxyReader := rules.NewDXYReader(dxySvc)

	modelCache := modelregistry.New(logger, modelRegistryRepo, map[types.ModelKind]modelregistry.Loader{
		types.ModelXGBoost:  modelregistry.JSONLoader,
		types.ModelLightGBM: modelregistry.JSONLoader,
		types.ModelLSTM:     modelregistry.JSONLoader,
	})
	scorer := scoring.New()

	pipe := pipeline.New(logger, pipeline.DefaultConfig(), extractor, classifier, killzone, smc, volumeProfile, priceAction, dxyReader, modelCache, scorer)

	scannerSvc := scanner.New(logger, pipe, candles, signals, settingsSvc)
	governanceSvc := governance.New(logger, settingsSvc, execEvents, predictiveReports)
	executorSvc := execution.New(logger, settingsSvc, execEvents, governanceSvc, bridge)
	ingestSvc := ingest.New(logger, bridge, candles)
	predictiveGen := predictive.New(logger, execEvents, predictiveReports)

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)
	executorSvc.SetMetrics(metricsRegistry)
	governanceSvc.SetMetrics(metricsRegistry)
	scannerSvc.SetMetrics(metricsRegistry)
	dxySvc.SetMetrics(metricsRegistry)

	bus := events.New(logger)

	pool := workers.NewPool(logger, workers.DefaultPoolConfig("scheduler"))
	sched := scheduler.New(logger, pool)
	jobs := scheduler.NewJobSet(bus, ingestSvc, scannerSvc, dxySvc, predictiveGen, governanceSvc, executorSvc, bridge, signals, settingsSvc)

	registerJob := func(schedule, name string, fn func(context.Context) error) {
		if err := sched.AddJob(schedule, scheduler.NewJobFunc(name, fn)); err != nil {
			logger.Fatal("registering job failed", zap.String("job", name), zap.Error(err))
		}
	}
	registerJob(jobIngestAndScan, "ingest_and_scan", jobs.IngestAndScan)
	registerJob(jobDXYRefresh, "refresh_dxy_context", jobs.RefreshDXYContext)
	registerJob(jobScannerAutoSel, "scanner_auto_select", jobs.ScannerAutoSelect)
	registerJob(jobPredictiveRun, "predictive_run", jobs.PredictiveRun)
	registerJob(jobTrainModelsNoop, "train_models", jobs.TrainModels)

	health := func(ctx context.Context) error {
		return db.Conn().PingContext(ctx)
	}

	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		gatherer = reg
	}
	server := api.NewServer(logger, cfg, bus, gatherer, health)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sched.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("aurum control plane started")

	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}

	logger.Info("aurum control plane stopped")
}

// dxyProviders builds the DXY provider chain. A single HTTP provider is
// configured today; additional mirrors can be appended here without
// touching internal/dxy.
func dxyProviders() []dxy.Provider {
	return []dxy.Provider{
		dxy.NewHTTPProvider("primary", "https://api.twelvedata.com/price?symbol=DXY", os.Getenv("DXY_API_KEY")),
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
