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

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/storage"
	"github.com/KevinKickass/OpenFillMonitor/internal/system"
)

type options struct {
	Config   string `long:"config" short:"c" default:"configs/config.yaml" description:"Path to the YAML config file"`
	EnvFile  string `long:"env-file" default:".env" description:"Optional .env file loaded before the config"`
	LogLevel string `long:"log-level" description:"Overrides logging.level (debug, info, warn, error)"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Println(err)
		os.Exit(1)
	}

	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load %s: %v", opts.EnvFile, err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("path", opts.Config),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int("machines", len(cfg.Machines)))

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	if err := storage.Provision(ctx, store, cfg.Machines, time.Now); err != nil {
		logger.Fatal("Failed to provision machines", zap.Error(err))
	}

	lifecycle, err := system.NewLifecycleManager(store, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create lifecycle manager", zap.Error(err))
	}

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("OpenFillMonitor started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenFillMonitor stopped successfully")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
