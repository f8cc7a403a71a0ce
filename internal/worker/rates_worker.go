// Package worker keeps the exchange rate table fresh in the background.
package worker

import (
	"context"
	"fmt"
	"time"

	"myfinances/internal/amqp"
	"myfinances/internal/core"
	applog "myfinances/internal/log"
)

// Rates is the part of the rate cache the worker drives.
type Rates interface {
	LoadPersisted(ctx context.Context) bool
	RefreshIfNeeded(ctx context.Context) bool
	Apply(ctx context.Context, table core.RateTable) bool
	LastUpdated() time.Time
	Source() core.RateSource
}

// Sweeper removes expired entries from in-memory caches.
type Sweeper interface {
	SweepOnce() int
}

type RatesWorker struct {
	rates    Rates
	sweeper  Sweeper
	interval time.Duration
	logger   *applog.Logger
}

// NewRatesWorker returns a worker checking rates every interval. sweeper may be nil.
func NewRatesWorker(rates Rates, sweeper Sweeper, interval time.Duration, logger *applog.Logger) *RatesWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RatesWorker{
		rates:    rates,
		sweeper:  sweeper,
		interval: interval,
		logger:   applog.OrDefault(logger, applog.ComponentWorker),
	}
}

// StartupCheck adopts persisted rates and fetches new ones if they are missing or stale.
func (w *RatesWorker) StartupCheck(ctx context.Context) {
	loaded := w.rates.LoadPersisted(ctx)
	fetched := w.rates.RefreshIfNeeded(ctx)
	w.logger.InfoContext(ctx, "Startup rates check completed",
		applog.FieldOperation, applog.OpStartup,
		"loaded_persisted", loaded,
		"fetched", fetched,
		applog.FieldRateSource, w.rates.Source())
}

// Tick runs one periodic pass.
func (w *RatesWorker) Tick(ctx context.Context) {
	if w.rates.RefreshIfNeeded(ctx) {
		w.logger.DebugContext(ctx, "Periodic rates refresh attempted",
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldRateSource, w.rates.Source())
	}
	if w.sweeper != nil {
		if n := w.sweeper.SweepOnce(); n > 0 {
			w.logger.DebugContext(ctx, "Swept expired entries",
				applog.FieldOperation, applog.OpSweep,
				"removed", n)
		}
	}
}

// Run performs the startup check and then ticks until ctx is done.
func (w *RatesWorker) Run(ctx context.Context) error {
	w.StartupCheck(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Rates worker stopped", applog.FieldOperation, applog.OpShutdown)
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// HandleRatesUpdated applies a table published by another process.
// Tables that are older or for another base are acknowledged and ignored.
func (w *RatesWorker) HandleRatesUpdated(ctx context.Context, msg *amqp.RatesUpdatedMessage) error {
	if msg == nil {
		return fmt.Errorf("nil rates message")
	}
	table := msg.Table()
	applied := w.rates.Apply(ctx, table)
	w.logger.InfoContext(ctx, "Received rates update",
		applog.FieldOperation, applog.OpConsume,
		applog.FieldBase, table.Base,
		applog.FieldRateCount, len(table.Rates),
		"applied", applied,
		"updated_at", table.UpdatedAt.Format(time.RFC3339))
	return nil
}
