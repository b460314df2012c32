package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/StrathCole/marketpulse/pkg/config"
	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/server"
	"github.com/StrathCole/marketpulse/pkg/version"
)

var (
	configFile string
	envFile    string
)

// serveCmd runs the snapshot server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configFile, "config", "config/config.yaml", "Path to configuration file")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the configuration")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	// Variables from the dotenv file feed ${VAR} expansion in the YAML
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting marketpulse", "version", version.Version, "assets", cfg.TrackedSymbols())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	svc, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	runErr := svc.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Service stopped with error", "error", runErr)
		return runErr
	}
	logger.Info("Shutdown complete")
	return nil
}
