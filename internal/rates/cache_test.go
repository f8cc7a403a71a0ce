package rates

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myfinances/internal/core"
	applog "myfinances/internal/log"
	"myfinances/internal/storage"
	"myfinances/internal/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeFetcher struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	rates map[core.CurrencyCode]float64
}

func (f *fakeFetcher) Latest(_ context.Context, base core.CurrencyCode) (core.RateTable, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return core.RateTable{}, f.err
	}
	t := core.NewRateTable(base)
	for k, v := range f.rates {
		t.Rates[k] = v
	}
	t.Source = core.SourceLive
	return t, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	tables []core.RateTable
}

func (n *recordingNotifier) PublishRatesUpdated(_ context.Context, t core.RateTable) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables = append(n.tables, t)
	return nil
}

func liveRates() map[core.CurrencyCode]float64 {
	return map[core.CurrencyCode]float64{core.USD: 1.07, core.CAD: 1.47, core.PLN: 4.35}
}

func newCache(f Fetcher, store storage.KeyValueStore, clock *fakeClock) *Cache {
	return New(Config{
		Base:          core.EUR,
		Freshness:     time.Hour,
		RetryInterval: 5 * time.Minute,
		Fetcher:       f,
		Store:         store,
		Logger:        applog.Discard(),
		Now:           clock.Now,
	})
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)}
}

func TestRate(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{rates: map[core.CurrencyCode]float64{core.USD: 1.07}}
	c := newCache(f, nil, newClock())

	assert.Equal(t, 1.10, c.Rate(core.USD), "fallback before any refresh")
	require.NoError(t, c.Refresh(ctx))

	assert.Equal(t, 1.0, c.Rate(core.EUR))
	assert.Equal(t, 1.0, c.Rate(core.Other))
	assert.Equal(t, 1.07, c.Rate(core.USD))
	assert.Equal(t, 1.50, c.Rate(core.CAD), "missing entries fall through to the fallback table")
	assert.Equal(t, 1.0, c.Rate("XYZ"))
}

func TestConvert(t *testing.T) {
	c := newCache(&fakeFetcher{rates: liveRates()}, nil, newClock())
	require.NoError(t, c.Refresh(context.Background()))

	for _, x := range []float64{0, 1, 12.5, -40, 1e6} {
		for _, to := range []core.CurrencyCode{core.EUR, core.USD, core.CAD, core.PLN, core.Other, "GBP"} {
			assert.InDelta(t, 2*c.Convert(x, to), c.Convert(2*x, to), 1e-9)
		}
		assert.Equal(t, x, c.Convert(x, core.EUR))
	}
}

func TestRefreshIfNeeded(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches when empty", func(t *testing.T) {
		f := &fakeFetcher{rates: liveRates()}
		c := newCache(f, nil, newClock())
		assert.True(t, c.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(1), f.calls.Load())
		assert.Equal(t, core.SourceLive, c.Source())
	})
	t.Run("respects the freshness window", func(t *testing.T) {
		f := &fakeFetcher{rates: liveRates()}
		clock := newClock()
		c := newCache(f, nil, clock)
		require.NoError(t, c.Refresh(ctx))

		clock.Advance(3599 * time.Second)
		assert.False(t, c.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(1), f.calls.Load())

		clock.Advance(2 * time.Second)
		assert.True(t, c.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(2), f.calls.Load())
	})
	t.Run("spaces retries after a failure", func(t *testing.T) {
		f := &fakeFetcher{err: &core.RateFetchError{Reason: "quota-reached"}}
		clock := newClock()
		c := newCache(f, nil, clock)

		assert.True(t, c.RefreshIfNeeded(ctx))
		clock.Advance(4 * time.Minute)
		assert.False(t, c.RefreshIfNeeded(ctx))
		clock.Advance(time.Minute)
		assert.True(t, c.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(2), f.calls.Load())
	})
	t.Run("zero retry interval retries every time", func(t *testing.T) {
		f := &fakeFetcher{err: assert.AnError}
		c := New(Config{Fetcher: f, Logger: applog.Discard(), Now: newClock().Now})
		assert.True(t, c.RefreshIfNeeded(ctx))
		assert.True(t, c.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(2), f.calls.Load())
	})
}

func TestRefreshFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	f := &fakeFetcher{err: assert.AnError}
	c := newCache(f, store, newClock())

	err := c.Refresh(ctx)
	var rfe *core.RateFetchError
	require.ErrorAs(t, err, &rfe)
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, core.SourceFallback, c.Source())
	assert.True(t, c.LastUpdated().IsZero(), "fallback is not a successful refresh")
	for _, to := range []core.CurrencyCode{core.USD, core.CAD, core.PLN, "GBP", "JPY", "CHF", "XYZ"} {
		v := c.Convert(100, to)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), to)
	}
	assert.Equal(t, 165.0, c.Rate("JPY"))

	_, err = store.Get(ctx, PersistKey)
	assert.ErrorIs(t, err, storage.ErrNotFound, "fallback table must not be persisted")
}

func TestRefreshSuccessPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &recordingNotifier{}
	clock := newClock()
	c := New(Config{
		Base:     core.EUR,
		Fetcher:  &fakeFetcher{rates: liveRates()},
		Store:    store,
		Notifier: n,
		Logger:   applog.Discard(),
		Now:      clock.Now,
	})
	require.NoError(t, c.Refresh(ctx))

	data, err := store.Get(ctx, PersistKey)
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "EUR", p["base"])
	assert.Contains(t, p, "rates")
	assert.Contains(t, p, "timestamp")

	require.Len(t, n.tables, 1)
	assert.Equal(t, 1.07, n.tables[0].Rates[core.USD])
	assert.Equal(t, clock.Now(), c.LastUpdated())
}

func TestRefresh_ConcurrentCallsShareOneFetch(t *testing.T) {
	f := &fakeFetcher{rates: liveRates(), delay: 50 * time.Millisecond}
	c := newCache(f, nil, newClock())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Refresh(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoadPersisted(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, clock *fakeClock, age time.Duration) *memory.Store {
		t.Helper()
		store := memory.New()
		writer := newCache(&fakeFetcher{rates: liveRates()}, store, &fakeClock{t: clock.Now().Add(-age)})
		require.NoError(t, writer.Refresh(ctx))
		return store
	}

	t.Run("adopts a fresh table", func(t *testing.T) {
		clock := newClock()
		store := seed(t, clock, 30*time.Minute)
		c := newCache(&fakeFetcher{}, store, clock)

		assert.True(t, c.LoadPersisted(ctx))
		assert.Equal(t, core.SourcePersisted, c.Source())
		assert.Equal(t, 1.47, c.Rate(core.CAD))
		assert.False(t, c.RefreshIfNeeded(ctx))
	})
	t.Run("ignores a stale table", func(t *testing.T) {
		clock := newClock()
		store := seed(t, clock, 3601*time.Second)
		f := &fakeFetcher{rates: liveRates()}
		c := newCache(f, store, clock)

		assert.False(t, c.LoadPersisted(ctx))
		assert.True(t, c.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(1), f.calls.Load())
	})
	t.Run("ignores a table for another base", func(t *testing.T) {
		clock := newClock()
		store := seed(t, clock, time.Minute)
		c := New(Config{Base: core.USD, Store: store, Logger: applog.Discard(), Now: clock.Now})
		assert.False(t, c.LoadPersisted(ctx))
	})
	t.Run("ignores malformed data", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.Set(ctx, PersistKey, []byte("[]")))
		c := newCache(&fakeFetcher{}, store, newClock())
		assert.False(t, c.LoadPersisted(ctx))
		assert.Equal(t, core.SourceNone, c.Source())
	})
}

func TestFallbackTable(t *testing.T) {
	eur := FallbackTable(core.EUR)
	assert.Len(t, eur.Rates, 6)
	assert.Equal(t, 4.30, eur.Rates[core.PLN])

	usd := FallbackTable(core.USD)
	assert.InDelta(t, 1/1.10, usd.Rates[core.EUR], 1e-12)
	assert.InDelta(t, 1.50/1.10, usd.Rates[core.CAD], 1e-12)
	assert.NotContains(t, usd.Rates, core.USD)

	assert.Empty(t, FallbackTable("XYZ").Rates)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newCache(&fakeFetcher{rates: liveRates()}, nil, newClock())
	require.NoError(t, c.Refresh(context.Background()))
	s := c.Snapshot()
	s.Rates[core.USD] = 99
	assert.Equal(t, 1.07, c.Rate(core.USD))
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	remote := func(at time.Time, base core.CurrencyCode) core.RateTable {
		tbl := core.NewRateTable(base)
		tbl.Rates[core.USD] = 1.09
		tbl.Rates[core.CAD] = math.NaN()
		tbl.UpdatedAt = at
		tbl.Source = core.SourceLive
		return tbl
	}

	t.Run("adopts a newer table and persists it", func(t *testing.T) {
		clock := newClock()
		store := memory.New()
		f := &fakeFetcher{rates: liveRates()}
		c := newCache(f, store, clock)
		require.NoError(t, c.Refresh(ctx))

		at := clock.Now().Add(10 * time.Minute)
		require.True(t, c.Apply(ctx, remote(at, core.EUR)))
		assert.Equal(t, 1.09, c.Rate(core.USD))
		assert.Equal(t, 1.50, c.Rate(core.CAD), "invalid rates fall through to the fallback")
		assert.Equal(t, at, c.LastUpdated())

		_, err := store.Get(ctx, PersistKey)
		assert.NoError(t, err)
	})
	t.Run("rejects an older table", func(t *testing.T) {
		clock := newClock()
		c := newCache(&fakeFetcher{rates: liveRates()}, nil, clock)
		require.NoError(t, c.Refresh(ctx))

		assert.False(t, c.Apply(ctx, remote(clock.Now(), core.EUR)))
		assert.Equal(t, 1.07, c.Rate(core.USD))
	})
	t.Run("rejects another base", func(t *testing.T) {
		c := newCache(&fakeFetcher{}, nil, newClock())
		assert.False(t, c.Apply(ctx, remote(time.Now(), core.USD)))
	})
	t.Run("clears a failed refresh", func(t *testing.T) {
		clock := newClock()
		c := newCache(&fakeFetcher{err: assert.AnError}, nil, clock)
		_ = c.Refresh(ctx)
		require.Equal(t, core.SourceFallback, c.Source())

		require.True(t, c.Apply(ctx, remote(clock.Now(), core.EUR)))
		assert.Equal(t, core.SourceLive, c.Source())
		assert.False(t, c.NeedsRefresh())
	})
}
