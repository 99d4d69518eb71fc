package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/config"
	"github.com/Aidin1998/bundleprep/internal/pipeline"
	"github.com/Aidin1998/bundleprep/internal/store"
	"github.com/Aidin1998/bundleprep/internal/strategy"
	"github.com/Aidin1998/bundleprep/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("bundleprep: %v", err)
	}
}

// run returns instead of exiting so the deferred store close and telemetry shutdown
// always happen.
func run() error {
	configPath := pflag.StringP("config", "c", "bundleprep.yaml", "path to the pipeline configuration file")
	list := pflag.BoolP("list", "l", false, "print the available strategies and their param templates, then exit")
	pflag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	if *list {
		reg := strategy.NewRegistry(strategy.Deps{})
		if err := yaml.NewEncoder(os.Stdout).Encode(reg.Available()); err != nil {
			return fmt.Errorf("failed to print strategies: %w", err)
		}
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := setupTelemetry()
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				zapLogger.Warn("Telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open bundle store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			zapLogger.Warn("Failed to close bundle store", zap.Error(err))
		}
	}()

	registry := strategy.NewRegistry(strategy.Deps{Logger: zapLogger, Store: st})
	executor := pipeline.NewExecutor(registry, zapLogger)

	bundles := make([]*bundle.DataBundle, cfg.Bundles)
	for i := range bundles {
		bundles[i] = bundle.New()
	}

	zapLogger.Info("Running pipeline",
		zap.String("config", *configPath),
		zap.Int("steps", len(cfg.Pipeline)),
		zap.Int("bundles", len(bundles)))

	res, err := executor.Run(ctx, bundles, cfg.Requests())
	if err != nil {
		zapLogger.Error("Pipeline failed", zap.Error(err))
		return err
	}

	if cfg.OutputKey != "" {
		for i, b := range res.Bundles {
			key := fmt.Sprintf("%s-%d", cfg.OutputKey, i)
			if err := st.Save(ctx, key, b.Snapshot()); err != nil {
				return fmt.Errorf("failed to save output bundle %s: %w", key, err)
			}
			zapLogger.Info("Saved output bundle", zap.String("bundle_key", key))
		}
	}

	views := make([]bundle.View, len(res.Bundles))
	for i, b := range res.Bundles {
		views[i] = b.Describe()
	}
	if err := yaml.NewEncoder(os.Stdout).Encode(views); err != nil {
		zapLogger.Error("Failed to print bundle summary", zap.Error(err))
	}
	return nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	s, err := store.NewBadgerStore(cfg.Path, cfg.Memory())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// setupTelemetry installs stdout trace and metric exporters on stderr, keeping stdout
// for the bundle summary.
func setupTelemetry() (func(context.Context) error, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
