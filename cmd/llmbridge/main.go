// Package main is the entry point for the llmbridge proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/lotbones1-code/llmbridge/internal/config"
	"github.com/lotbones1-code/llmbridge/internal/gateway"
	"github.com/lotbones1-code/llmbridge/internal/monitoring"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/llmbridge/.env first
	configEnv := filepath.Join(homeDir, ".config", "llmbridge", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

// resolveConfig locates the config file: user flag first, then standard
// filesystem locations.
func resolveConfig(userConfig string) (string, error) {
	if userConfig != "" {
		if _, err := os.Stat(userConfig); err != nil {
			return "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return userConfig, nil
	}

	searchPaths := []string{"configs/config.yaml", "config.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append([]string{
			filepath.Join(homeDir, ".config", "llmbridge", "config.yaml"),
		}, searchPaths...)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found, specify --config path")
}

func main() {
	loadEnvFiles()

	fs := flag.NewFlagSet("llmbridge", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	version := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *version {
		fmt.Printf("llmbridge %s\n", Version)
		return
	}

	path, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerCfg := monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	}
	monitoring.Global(loggerCfg)
	logger := monitoring.New(loggerCfg)

	log.Info().
		Str("version", Version).
		Str("config", path).
		Msg("llmbridge starting")

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.TelemetryEnabled,
		LogPath:     cfg.Monitoring.TelemetryPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	gw := gateway.New(cfg, logger, tracker, gateway.Options{})

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := gw.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("llmbridge stopped")
}
