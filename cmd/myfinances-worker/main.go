// Command myfinances-worker keeps the shared exchange rate table fresh and
// announces every refresh over AMQP.
package main

import (
	"context"
	"os"
	"time"

	"myfinances/internal/cli"
	applog "myfinances/internal/log"
	"myfinances/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.BootstrapLogger())
	logger := cli.SetupLogger(cfg)

	logger.Info("Starting myfinances-worker",
		applog.FieldOperation, applog.OpStartup,
		applog.FieldBase, cfg.RatesBaseCurrency,
		"interval", cfg.RatesRefreshInterval)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", applog.FieldError, err)
		os.Exit(1)
	}
	if app.AMQP == nil {
		logger.Info("AMQP disabled, refreshed rates are only persisted")
	}

	ratesWorker := worker.NewRatesWorker(app.Rates, app.Caches, cfg.RatesRefreshInterval, logger)

	stopped := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		<-stopped
		if err := app.Close(); err != nil {
			logger.Warn("Failed to release resources", applog.FieldError, err)
		}
	})

	go func() {
		defer close(stopped)
		if err := ratesWorker.Run(ctx); err != nil {
			logger.Error("Rates worker failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
