package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"ocr-lab/domain"
	"ocr-lab/infrastructure/queue"
	"ocr-lab/infrastructure/search"
	"ocr-lab/infrastructure/storage"
	"ocr-lab/internal"
	"ocr-lab/quality"
	"ocr-lab/runtime"
	"ocr-lab/runtime/workers"
	"ocr-lab/services"
	"ocr-lab/sink"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: run() owns the lifecycle so that deferred
	// cleanups execute before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scand terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB result cache + Bluge search index)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Engine registry: native pool plus bridged sidecar engines.
	registry := runtime.NewRegistry(logger, runtime.RegistryConfig{
		PoolSize:       config.PoolSize,
		PoolBufferSize: config.JobBufferSize,
		Bridges:        bridgeConfigs(config),
	})
	if err := registry.Initialize(ctx); err != nil {
		return exitRuntime, fmt.Errorf("registry init failed: %w", err)
	}
	defer func() {
		logger.Info("Disposing engine registry...")
		_ = registry.Dispose()
	}()

	calculator, err := quality.NewCalculator()
	if err != nil {
		return exitRuntime, fmt.Errorf("quality calculator init failed: %w", err)
	}

	orchestrator := runtime.NewOrchestrator(logger, registry, calculator, nil, config.EventBufferSize, 0)

	// 4. Facade and its collaborators
	searchIndex := search.NewIndex(blugeWriter, logger)
	resultCache := storage.NewResultCache(db, logger, config.CacheTTL)
	service := services.NewRecognitionService(logger, registry, orchestrator, resultCache, nil, searchIndex)

	// 5. Supervision: pool units, event fanout, health monitor, queue consumer.
	searchSink := sink.NewSearchSink(searchIndex, logger, config.SearchFlushSize, config.SearchFlushTimeout)
	defer searchSink.Flush()

	fanout := workers.NewEventFanout(logger, orchestrator.Events(), config.SinkTimeout).
		Add(sink.NewLogSink(logger), searchSink)
	monitor := workers.NewHealthMonitoringWorker(logger, registry, orchestrator, config.MetricInterval)

	consumer, err := queue.NewConsumer(logger, config.RedisURI, config.QueueConcurrency, service)
	if err != nil {
		return exitConfig, fmt.Errorf("queue consumer init failed: %w", err)
	}

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(fanout, monitor, consumer)
	sup.Add(registry.Workers()...)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting scand...", "health", service.Health().Status)
	go sup.Run(ctx)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// 7. Graceful shutdown: stop accepting queue work, then stop workers.
	consumer.Shutdown()
	sup.Stop()
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func bridgeConfigs(config internal.Config) []runtime.BridgeConfig {
	if !config.EnableBridges {
		return nil
	}
	var bridges []runtime.BridgeConfig
	if config.EasyOCRBinPath != "" {
		bridges = append(bridges, runtime.BridgeConfig{
			ID:        domain.EngineEasyOCR,
			BinPath:   config.EasyOCRBinPath,
			Languages: []string{"eng", "fra", "deu", "spa", "chi"},
			Formats:   []string{"png", "jpeg", "bmp"},
			Features:  []string{"word-boxes", "handwriting"},
		})
	}
	if config.PaddleOCRBinPath != "" {
		bridges = append(bridges, runtime.BridgeConfig{
			ID:        domain.EnginePaddleOCR,
			BinPath:   config.PaddleOCRBinPath,
			Languages: []string{"eng", "chi"},
			Formats:   []string{"png", "jpeg"},
			Features:  []string{"word-boxes", "table-structure"},
		})
	}
	return bridges
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}
	return options
}
