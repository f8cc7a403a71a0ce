// Package exchangerate is a client for the exchangerate-api.com "latest" endpoint.
package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"myfinances/internal/core"
	applog "myfinances/internal/log"
)

const redacted = "REDACTED"

// ReasonMissingKey is the reason of a [core.RateFetchError] when no API key is configured.
const ReasonMissingKey = "missing-key"

type Config struct {
	BaseURL string
	APIKey  string

	HTTPClient   *http.Client
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *applog.Logger
}

// Client fetches conversion rates. Failed requests are retried on
// connection errors and 5xx responses.
type Client struct {
	rhc     *retryablehttp.Client
	baseURL string
	apiKey  string
	logger  *applog.Logger
}

func New(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  applog.OrDefault(cfg.Logger, applog.ComponentRates),
	}
	rhc := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		rhc.HTTPClient = cfg.HTTPClient
	}
	rhc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rhc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rhc.RetryWaitMax = cfg.RetryWaitMax
	}
	// the default logger would print URLs containing the API key
	rhc.Logger = nil
	rhc.ResponseLogHook = c.logResponse
	c.rhc = rhc
	return c
}

type latestResponse struct {
	Result             string             `json:"result"`
	BaseCode           string             `json:"base_code"`
	TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
	ConversionRates    map[string]float64 `json:"conversion_rates"`
	ErrorType          string             `json:"error-type"`
	ErrorTypeAlt       string             `json:"error_type"`
}

func (r latestResponse) errorType() string {
	if r.ErrorType != "" {
		return r.ErrorType
	}
	if r.ErrorTypeAlt != "" {
		return r.ErrorTypeAlt
	}
	return "unknown-error"
}

// Latest returns the current rates for base. The returned table has source
// [core.SourceLive]; its UpdatedAt is left for the caller to set.
// Rates which are not positive finite numbers are dropped.
// All errors are of type [*core.RateFetchError].
func (c *Client) Latest(ctx context.Context, base core.CurrencyCode) (core.RateTable, error) {
	if c.apiKey == "" {
		return core.RateTable{}, &core.RateFetchError{Reason: ReasonMissingKey}
	}
	u := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, url.PathEscape(c.apiKey), url.PathEscape(string(base)))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.RateTable{}, &core.RateFetchError{Err: c.redactError(err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.rhc.Do(req)
	if err != nil {
		return core.RateTable{}, &core.RateFetchError{Err: c.redactError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.RateTable{}, &core.RateFetchError{Err: c.redactError(err)}
	}
	var data latestResponse
	if err := json.Unmarshal(body, &data); err != nil {
		if resp.StatusCode >= 400 {
			return core.RateTable{}, &core.RateFetchError{Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return core.RateTable{}, &core.RateFetchError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if data.Result != "success" {
		return core.RateTable{}, &core.RateFetchError{Reason: data.errorType()}
	}

	t := core.NewRateTable(base)
	t.Source = core.SourceLive
	dropped := 0
	for k, v := range data.ConversionRates {
		code := core.CurrencyCode(strings.ToUpper(strings.TrimSpace(k)))
		if code == "" || !core.ValidRate(v) {
			dropped++
			continue
		}
		if code == base {
			continue
		}
		t.Rates[code] = v
	}
	if dropped > 0 {
		c.logger.WarnContext(ctx, "Dropped invalid exchange rates", "count", dropped)
	}
	if len(t.Rates) == 0 {
		return core.RateTable{}, &core.RateFetchError{Err: errors.New("response contains no usable rates")}
	}
	return t, nil
}

func (c *Client) redactURL(s string) string {
	if c.apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.apiKey, redacted)
}

// redactError drops the error chain, since wrapped url errors carry the key.
func (c *Client) redactError(err error) error {
	if c.apiKey == "" || !strings.Contains(err.Error(), c.apiKey) {
		return err
	}
	return errors.New(c.redactURL(err.Error()))
}

// logResponse is a callback for retryablehttp.
// HTTP errors are logged as warnings, everything else at DEBUG.
func (c *Client) logResponse(_ retryablehttp.Logger, r *http.Response) {
	level := slog.LevelDebug
	if r.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	var u string
	if r.Request != nil {
		u = c.redactURL(r.Request.URL.String())
	}
	c.logger.Log(context.Background(), level, "HTTP response",
		"url", u,
		"status", fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)))
}
