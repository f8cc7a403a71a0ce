package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	applog "myfinances/internal/log"
)

const redacted = "REDACTED"

// LoggedTransport logs every HTTP exchange.
//
// Responses with status code below 400 are logged at DEBUG, others at WARN.
// When DEBUG is enabled request and response details are logged as well.
// Authorization headers are always redacted. Bodies of exchanges with URLs
// containing one of RedactedURLs (e.g. the login endpoint) are never logged.
// Every occurrence of one of Secrets (e.g. an API key in a URL path) is
// replaced in logged URLs and errors.
type LoggedTransport struct {
	// Base defaults to http.DefaultTransport.
	Base         http.RoundTripper
	Logger       *applog.Logger
	RedactedURLs []string
	Secrets      []string
}

func (t LoggedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.Logger
	if logger == nil {
		logger = applog.OrDefault(nil, applog.ComponentGateway)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	isRedacted := t.isRedacted(req)
	u := t.mask(req.URL.Redacted())
	isDebug := logger.Enabled(req.Context(), slog.LevelDebug)
	if isDebug {
		t.logRequest(logger, req, u, isRedacted)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		logger.WarnContext(req.Context(), "HTTP request failed",
			applog.FieldMethod, req.Method,
			"url", u,
			applog.FieldError, t.mask(err.Error()))
		return resp, err
	}
	t.logResponse(logger, req, resp, u, isDebug, isRedacted, time.Since(start))
	return resp, nil
}

func (t LoggedTransport) isRedacted(req *http.Request) bool {
	u := req.URL.String()
	for _, s := range t.RedactedURLs {
		if strings.Contains(u, s) {
			return true
		}
	}
	return false
}

// mask replaces every secret in s.
func (t LoggedTransport) mask(s string) string {
	for _, secret := range t.Secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}

func (t LoggedTransport) logRequest(logger *applog.Logger, req *http.Request, u string, isRedacted bool) {
	reqBody := ""
	if isRedacted {
		reqBody = redacted
	} else if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			b, _ := io.ReadAll(body)
			body.Close()
			reqBody = t.mask(string(b))
		}
	}
	h := req.Header.Clone()
	if h.Get("Authorization") != "" {
		h.Set("Authorization", redacted)
	}
	logger.DebugContext(req.Context(), "HTTP request",
		applog.FieldMethod, req.Method,
		"url", u,
		"header", h,
		"body", reqBody)
}

func (t LoggedTransport) logResponse(logger *applog.Logger, req *http.Request, resp *http.Response, u string, isDebug, isRedacted bool, d time.Duration) {
	if isDebug {
		var respBody string
		if isRedacted {
			respBody = redacted
		} else if resp.Body != nil {
			body, err := io.ReadAll(resp.Body)
			if err == nil {
				respBody = t.mask(string(body))
			}
			resp.Body = io.NopCloser(bytes.NewBuffer(body))
		}
		logger.DebugContext(req.Context(), "HTTP response details",
			applog.FieldMethod, req.Method,
			"url", u,
			"header", resp.Header,
			"body", respBody)
	}
	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	logger.Log(req.Context(), level, "HTTP response",
		applog.FieldMethod, req.Method,
		"url", u,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, d.Milliseconds())
}
