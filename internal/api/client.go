// Package api is a typed client for the finance API resources.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"myfinances/internal/cache"
	"myfinances/internal/core"
	"myfinances/internal/gateway"
	applog "myfinances/internal/log"
)

const (
	PathExpenses = "/expenses"
	PathSummary  = "/expenses_summary"
	PathIncome   = "/income"

	defaultCacheSize = 64
)

// Requester sends authenticated requests. Implemented by [gateway.Gateway].
type Requester interface {
	Do(ctx context.Context, method, path string) (*gateway.Response, error)
}

type Config struct {
	Gateway Requester
	// CacheTTL is how long response bodies are reused. Zero disables caching.
	CacheTTL time.Duration
	Logger   *applog.Logger
}

// Client caches raw response bodies per path, so every call decodes fresh values.
type Client struct {
	gw     Requester
	cache  *cache.LRUCache[[]byte]
	logger *applog.Logger
}

func New(cfg Config) *Client {
	return &Client{
		gw:     cfg.Gateway,
		cache:  cache.NewLRUCache[[]byte](defaultCacheSize, cfg.CacheTTL),
		logger: applog.OrDefault(cfg.Logger, applog.ComponentAPI),
	}
}

// Cache returns the response cache, e.g. for registering with a [cache.Manager].
func (c *Client) Cache() *cache.LRUCache[[]byte] {
	return c.cache
}

// Invalidate drops all cached responses.
func (c *Client) Invalidate() {
	c.cache.Clear()
}

func (c *Client) FetchExpenses(ctx context.Context) ([]core.Expense, error) {
	var r core.ExpenseResponse
	if err := c.get(ctx, PathExpenses, &r); err != nil {
		return nil, err
	}
	return r.Expenses, nil
}

// FetchExpensesByType returns the expenses of one category.
func (c *Client) FetchExpensesByType(ctx context.Context, expenseType string) ([]core.Expense, error) {
	if expenseType == "" {
		return nil, errors.New("expense type is empty")
	}
	var r core.ExpenseResponse
	if err := c.get(ctx, PathExpenses+"/"+url.PathEscape(expenseType), &r); err != nil {
		return nil, err
	}
	return r.Expenses, nil
}

func (c *Client) FetchSummary(ctx context.Context) ([]core.SummaryItem, error) {
	var r core.SummaryResponse
	if err := c.get(ctx, PathSummary, &r); err != nil {
		return nil, err
	}
	return r.Summary, nil
}

func (c *Client) FetchIncome(ctx context.Context) ([]core.Income, error) {
	var r core.IncomeResponse
	if err := c.get(ctx, PathIncome, &r); err != nil {
		return nil, err
	}
	return r.Income, nil
}

// Overview holds all resources of the finance API.
type Overview struct {
	Expenses []core.Expense
	Income   []core.Income
	Summary  []core.SummaryItem
}

// FetchAll loads expenses, income and summary concurrently.
// It fails when any of them fails.
func (c *Client) FetchAll(ctx context.Context) (*Overview, error) {
	var o Overview
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		o.Expenses, err = c.FetchExpenses(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		o.Income, err = c.FetchIncome(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		o.Summary, err = c.FetchSummary(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	body, ok := c.cache.Get(path)
	if !ok {
		resp, err := c.gw.Do(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		body = resp.Body
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.cache.Delete(path)
		return &core.NetworkError{Op: applog.OpFetch, Path: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !ok {
		c.cache.Set(path, body)
	} else {
		c.logger.DebugContext(ctx, "Using cached response", applog.FieldPath, path)
	}
	return nil
}
