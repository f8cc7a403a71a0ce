package exchangerate_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myfinances/internal/core"
	"myfinances/internal/exchangerate"
	applog "myfinances/internal/log"
)

const latestURL = "https://rates.test/v6/secret-key/latest/EUR"

func newClient(t *testing.T, mt *httpmock.MockTransport, key string, buf *bytes.Buffer) *exchangerate.Client {
	t.Helper()
	logger := applog.Discard()
	if buf != nil {
		logger = applog.New(applog.Config{Level: slog.LevelDebug, Output: buf})
	}
	return exchangerate.New(exchangerate.Config{
		BaseURL:      "https://rates.test/v6/",
		APIKey:       key,
		HTTPClient:   &http.Client{Transport: mt},
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
		Logger:       logger,
	})
}

func TestLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder("GET", latestURL, httpmock.NewStringResponder(200, `{
			"result": "success",
			"base_code": "EUR",
			"time_last_update_unix": 1718323201,
			"conversion_rates": {"EUR": 1, "USD": 1.07, "CAD": 1.47, "PLN": 4.35, "XXX": 0, "YYY": -2}
		}`))
		c := newClient(t, mt, "secret-key", nil)

		table, err := c.Latest(ctx, core.EUR)
		require.NoError(t, err)
		assert.Equal(t, core.EUR, table.Base)
		assert.Equal(t, core.SourceLive, table.Source)
		assert.Equal(t, map[core.CurrencyCode]float64{"USD": 1.07, "CAD": 1.47, "PLN": 4.35}, table.Rates)
	})
	t.Run("provider error", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder("GET", latestURL, httpmock.NewStringResponder(200, `{"result":"error","error-type":"invalid-key"}`))
		c := newClient(t, mt, "secret-key", nil)

		_, err := c.Latest(ctx, core.EUR)
		var rfe *core.RateFetchError
		require.ErrorAs(t, err, &rfe)
		assert.Equal(t, "invalid-key", rfe.Reason)
	})
	t.Run("retries server errors", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder("GET", latestURL, httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(503, "unavailable"),
			httpmock.NewStringResponse(200, `{"result":"success","base_code":"EUR","conversion_rates":{"USD":1.1}}`),
		}))
		c := newClient(t, mt, "secret-key", nil)

		table, err := c.Latest(ctx, core.EUR)
		require.NoError(t, err)
		assert.Equal(t, 1.1, table.Rates[core.USD])
		assert.Equal(t, 2, mt.GetTotalCallCount())
	})
	t.Run("no usable rates", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		mt.RegisterResponder("GET", latestURL, httpmock.NewStringResponder(200, `{"result":"success","base_code":"EUR","conversion_rates":{"EUR":1}}`))
		c := newClient(t, mt, "secret-key", nil)

		_, err := c.Latest(ctx, core.EUR)
		var rfe *core.RateFetchError
		assert.ErrorAs(t, err, &rfe)
	})
	t.Run("missing key does not call the provider", func(t *testing.T) {
		mt := httpmock.NewMockTransport()
		c := newClient(t, mt, "", nil)

		_, err := c.Latest(ctx, core.EUR)
		var rfe *core.RateFetchError
		require.ErrorAs(t, err, &rfe)
		assert.Equal(t, exchangerate.ReasonMissingKey, rfe.Reason)
		assert.Equal(t, 0, mt.GetTotalCallCount())
	})
}

func TestLatest_NeverLeaksKey(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("GET", latestURL, httpmock.NewErrorResponder(assert.AnError))
	mt.RegisterResponder("GET", "https://rates.test/v6/secret-key/latest/USD", httpmock.NewStringResponder(404, `{"result":"error","error-type":"unsupported-code"}`))
	var buf bytes.Buffer
	c := newClient(t, mt, "secret-key", &buf)

	_, err := c.Latest(context.Background(), core.EUR)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key")

	_, err = c.Latest(context.Background(), core.USD)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "REDACTED")
	assert.NotContains(t, buf.String(), "secret-key")
}
