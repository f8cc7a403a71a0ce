// Package cli provides initialization shared by cmd/myfinances and cmd/myfinances-worker.
package cli

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"myfinances/internal/config"
	"myfinances/internal/gateway"
	applog "myfinances/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// BootstrapLogger returns the logger used until the configuration is known.
func BootstrapLogger() *applog.Logger {
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)
	return logger
}

// SetupLogger initializes structured logging from cfg and sets it as the default logger.
func SetupLogger(cfg *config.Config) *applog.Logger {
	lc := applog.DefaultConfig()
	if level, err := cfg.SlogLevel(); err == nil {
		lc.Level = level
	}
	lc.File = cfg.LogFile
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// NewHTTPClient returns the client used for all outgoing requests.
// Bodies of login exchanges are never logged, nor are the configured
// password and rates API key, which is part of the rate provider's URL path.
func NewHTTPClient(cfg *config.Config, logger *applog.Logger) *http.Client {
	return &http.Client{
		Timeout: cfg.APITimeout,
		Transport: gateway.LoggedTransport{
			Logger:       logger.WithComponent(applog.ComponentGateway),
			RedactedURLs: []string{"/token"},
			Secrets:      secrets(cfg),
		},
	}
}

func secrets(cfg *config.Config) []string {
	var out []string
	for _, s := range []string{cfg.RatesAPIKey, cfg.APIPassword} {
		if s == "" {
			continue
		}
		out = append(out, s)
		if escaped := url.PathEscape(s); escaped != s {
			out = append(out, escaped)
		}
	}
	return out
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), applog.FieldOperation, applog.OpShutdown)
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
