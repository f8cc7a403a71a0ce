// Package rates holds the exchange rate table used to convert amounts.
//
// The table is refreshed from a remote provider when older than the freshness
// window, persisted after each successful refresh and replaced by a fixed
// fallback table when a refresh fails. Conversions never fail.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"myfinances/internal/core"
	applog "myfinances/internal/log"
	"myfinances/internal/storage"
)

// PersistKey is the state store key holding the last fetched table.
const PersistKey = "rates.table"

const (
	DefaultFreshness     = time.Hour
	DefaultRetryInterval = 5 * time.Minute
)

// Fetcher retrieves current rates for a base currency.
type Fetcher interface {
	Latest(ctx context.Context, base core.CurrencyCode) (core.RateTable, error)
}

// Notifier is told about every successful refresh.
type Notifier interface {
	PublishRatesUpdated(ctx context.Context, table core.RateTable) error
}

type Config struct {
	Base core.CurrencyCode
	// Freshness is the age after which the table is fetched again.
	Freshness time.Duration
	// RetryInterval spaces fetch attempts after a failure. Zero retries on every check.
	RetryInterval time.Duration

	Fetcher  Fetcher
	Store    storage.KeyValueStore // optional
	Notifier Notifier              // optional
	Logger   *applog.Logger
	Now      func() time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	base          core.CurrencyCode
	freshness     time.Duration
	retryInterval time.Duration
	fetcher       Fetcher
	store         storage.KeyValueStore
	notifier      Notifier
	logger        *applog.Logger
	now           func() time.Time

	sf singleflight.Group

	mu          sync.RWMutex
	table       core.RateTable
	lastSuccess time.Time
	lastAttempt time.Time
	lastFailed  bool
}

func New(cfg Config) *Cache {
	c := &Cache{
		base:          cfg.Base,
		freshness:     cfg.Freshness,
		retryInterval: cfg.RetryInterval,
		fetcher:       cfg.Fetcher,
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		logger:        applog.OrDefault(cfg.Logger, applog.ComponentRates),
		now:           cfg.Now,
	}
	if c.base == "" {
		c.base = core.EUR
	}
	if c.freshness <= 0 {
		c.freshness = DefaultFreshness
	}
	if c.retryInterval < 0 {
		c.retryInterval = 0
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.table = core.NewRateTable(c.base)
	return c
}

// Base returns the currency all amounts are converted from.
func (c *Cache) Base() core.CurrencyCode {
	return c.base
}

// Rate returns the multiplier converting one unit of the base currency into to.
// Lookups fall through the current table and the fallback table to 1.
func (c *Cache) Rate(to core.CurrencyCode) float64 {
	if to == c.base || to == core.Other {
		return 1
	}
	c.mu.RLock()
	v, ok := c.table.Rates[to]
	c.mu.RUnlock()
	if ok {
		return v
	}
	if v, ok := FallbackTable(c.base).Rates[to]; ok {
		return v
	}
	return 1
}

// Convert converts amount from the base currency into to.
func (c *Cache) Convert(amount float64, to core.CurrencyCode) float64 {
	return amount * c.Rate(to)
}

// Snapshot returns a copy of the current table.
func (c *Cache) Snapshot() core.RateTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Clone()
}

// LastUpdated returns the time of the last successful refresh, or zero.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

func (c *Cache) Source() core.RateSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Source
}

// NeedsRefresh reports whether a call to RefreshIfNeeded would fetch.
func (c *Cache) NeedsRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.needsRefreshLocked(c.now())
}

func (c *Cache) needsRefreshLocked(now time.Time) bool {
	if c.lastFailed && c.retryInterval > 0 && now.Sub(c.lastAttempt) < c.retryInterval {
		return false
	}
	if c.lastSuccess.IsZero() {
		return true
	}
	return now.Sub(c.lastSuccess) >= c.freshness
}

// RefreshIfNeeded fetches rates when the table is missing or stale and
// reports whether a fetch was attempted. Failures are logged, not returned.
func (c *Cache) RefreshIfNeeded(ctx context.Context) bool {
	if !c.NeedsRefresh() {
		return false
	}
	c.Refresh(ctx)
	return true
}

// Refresh fetches the rates unconditionally. Concurrent calls share one fetch.
// On failure the fallback table is installed and a [*core.RateFetchError] is returned,
// which callers are free to ignore.
func (c *Cache) Refresh(ctx context.Context) error {
	ch := c.sf.DoChan("refresh", func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		return r.Err
	}
}

func (c *Cache) refresh(ctx context.Context) error {
	if c.fetcher == nil {
		return c.fail(ctx, &core.RateFetchError{Reason: "no fetcher configured"})
	}
	table, err := c.fetcher.Latest(ctx, c.base)
	if err != nil {
		var rfe *core.RateFetchError
		if !errors.As(err, &rfe) {
			err = &core.RateFetchError{Err: err}
		}
		return c.fail(ctx, err)
	}

	now := c.now()
	t := core.NewRateTable(c.base)
	for k, v := range table.Rates {
		if k != c.base && core.ValidRate(v) {
			t.Rates[k] = v
		}
	}
	t.UpdatedAt = now
	t.Source = core.SourceLive

	c.mu.Lock()
	c.table = t
	c.lastSuccess = now
	c.lastAttempt = now
	c.lastFailed = false
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Exchange rates updated",
		applog.NewFields().WithOperation(applog.OpRefresh).WithRates(string(c.base), len(t.Rates), string(t.Source)).ToSlice()...)

	c.persist(ctx, t)
	if c.notifier != nil {
		if err := c.notifier.PublishRatesUpdated(ctx, t.Clone()); err != nil {
			c.logger.WarnContext(ctx, "Failed to publish rates update",
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err)
		}
	}
	return nil
}

// fail installs the fallback table. It is neither persisted nor counted as a refresh.
func (c *Cache) fail(ctx context.Context, err error) error {
	fb := FallbackTable(c.base)

	c.mu.Lock()
	fb.UpdatedAt = c.lastSuccess
	c.table = fb
	c.lastAttempt = c.now()
	c.lastFailed = true
	c.mu.Unlock()

	c.logger.WarnContext(ctx, "Using fallback exchange rates",
		applog.FieldOperation, applog.OpRefresh,
		applog.FieldErrorType, applog.ErrorTypeRateFetch,
		applog.FieldError, err)
	return err
}

// persistedTable is the stored form of a rate table.
type persistedTable struct {
	Base      core.CurrencyCode             `json:"base"`
	Rates     map[core.CurrencyCode]float64 `json:"rates"`
	Timestamp time.Time                     `json:"timestamp"`
}

func (c *Cache) persist(ctx context.Context, t core.RateTable) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(persistedTable{Base: t.Base, Rates: t.Rates, Timestamp: t.UpdatedAt})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to encode rates", applog.FieldError, err)
		return
	}
	if err := c.store.Set(ctx, PersistKey, data); err != nil {
		c.logger.WarnContext(ctx, "Failed to persist rates",
			applog.FieldOperation, applog.OpPersist,
			applog.FieldError, err)
	}
}

// LoadPersisted adopts the persisted table when it has the same base and is
// still within the freshness window. It reports whether a table was adopted.
func (c *Cache) LoadPersisted(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	data, err := c.store.Get(ctx, PersistKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.WarnContext(ctx, "Failed to load persisted rates", applog.FieldError, err)
		}
		return false
	}
	var p persistedTable
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.DebugContext(ctx, "Ignoring malformed persisted rates", applog.FieldError, err)
		return false
	}
	now := c.now()
	if p.Base != c.base || p.Timestamp.IsZero() || now.Sub(p.Timestamp) >= c.freshness {
		c.logger.DebugContext(ctx, "Ignoring persisted rates",
			applog.FieldBase, p.Base,
			applog.FieldAge, now.Sub(p.Timestamp).Round(time.Second))
		return false
	}

	t := core.NewRateTable(c.base)
	for k, v := range p.Rates {
		if k != c.base && core.ValidRate(v) {
			t.Rates[k] = v
		}
	}
	t.UpdatedAt = p.Timestamp
	t.Source = core.SourcePersisted

	c.mu.Lock()
	c.table = t
	c.lastSuccess = p.Timestamp
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Loaded persisted rates",
		applog.NewFields().WithOperation(applog.OpLoad).WithRates(string(c.base), len(t.Rates), string(t.Source)).ToSlice()...)
	return true
}

// Apply adopts a table refreshed elsewhere, such as by another process
// publishing over AMQP. The table must share the base currency and be newer
// than the last successful refresh. It reports whether the table was adopted.
func (c *Cache) Apply(ctx context.Context, table core.RateTable) bool {
	if table.Base != c.base || table.UpdatedAt.IsZero() {
		return false
	}
	t := core.NewRateTable(c.base)
	for k, v := range table.Rates {
		if k != c.base && core.ValidRate(v) {
			t.Rates[k] = v
		}
	}
	if len(t.Rates) == 0 {
		return false
	}
	t.UpdatedAt = table.UpdatedAt
	t.Source = core.SourceLive

	c.mu.Lock()
	if !t.UpdatedAt.After(c.lastSuccess) {
		c.mu.Unlock()
		return false
	}
	c.table = t
	c.lastSuccess = t.UpdatedAt
	c.lastFailed = false
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Applied rates update",
		applog.NewFields().WithOperation(applog.OpConsume).WithRates(string(c.base), len(t.Rates), string(t.Source)).ToSlice()...)
	c.persist(ctx, t)
	return true
}
