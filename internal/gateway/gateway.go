// Package gateway sends authenticated requests to the finance API.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"myfinances/internal/core"
	applog "myfinances/internal/log"
	"myfinances/internal/trace"
)

// TokenSource hands out bearer tokens. Implemented by session.Manager.
type TokenSource interface {
	ValidToken(ctx context.Context) (core.Token, error)
	Invalidate(accessToken string)
}

type Config struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	// RateLimit is the maximum number of requests per second. Zero disables limiting.
	RateLimit float64
	Logger    *applog.Logger
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Gateway attaches the current token to each request. A request rejected
// with 401 or 403 is retried once with a fresh token.
type Gateway struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	limiter *rate.Limiter
	logger  *applog.Logger
	metrics trace.Metrics
}

func New(cfg Config) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		client:  cfg.HTTPClient,
		logger:  applog.OrDefault(cfg.Logger, applog.ComponentGateway),
	}
	if g.client == nil {
		g.client = http.DefaultClient
	}
	if cfg.RateLimit > 0 {
		burst := max(int(cfg.RateLimit), 1)
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	} else {
		g.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return g
}

// Stats returns counts and the average duration of requests sent so far.
func (g *Gateway) Stats() trace.Snapshot {
	return g.metrics.Snapshot()
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Do sends a request for path and returns the response when its status is 2xx.
//
// Token failures are returned as [*core.AuthError], as is a request which
// is still rejected after a retry with a fresh token. Transport failures and
// other statuses are returned as [*core.NetworkError].
func (g *Gateway) Do(ctx context.Context, method, path string) (*Response, error) {
	const maxAttempts = 2
	ctx, _ = trace.Ensure(ctx)
	for attempt := 1; ; attempt++ {
		tok, err := g.tokens.ValidToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := g.send(ctx, method, path, tok.AccessToken, attempt)
		if err != nil {
			return nil, &core.NetworkError{Op: applog.OpRequest, Path: path, Err: err}
		}
		if isAuthFailure(resp.StatusCode) {
			g.tokens.Invalidate(tok.AccessToken)
			if attempt < maxAttempts {
				g.logger.InfoContext(ctx, "Token rejected, retrying with a new one",
					applog.NewFields().WithRequest(method, path, attempt).WithResponse(resp.StatusCode, 0).ToSlice()...)
				continue
			}
			return nil, &core.AuthError{Op: applog.OpRequest, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &core.NetworkError{Op: applog.OpRequest, Path: path, StatusCode: resp.StatusCode}
		}
		return resp, nil
	}
}

// GetJSON fetches path and decodes the response body into v.
func (g *Gateway) GetJSON(ctx context.Context, path string, v any) error {
	resp, err := g.Do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &core.NetworkError{Op: applog.OpRequest, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, method, path, accessToken string, attempt int) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	requestID := trace.RequestID(ctx)
	req.Header.Set(trace.Header, requestID)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.Record(time.Since(start), true)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	d := time.Since(start)
	g.metrics.Record(d, resp.StatusCode >= 400)
	g.logger.DebugContext(ctx, "Request completed",
		append(applog.NewFields().WithRequest(method, path, attempt).WithResponse(resp.StatusCode, d.Milliseconds()).ToSlice(),
			applog.FieldRequestID, requestID)...)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
