// Package trace tags outbound requests with an ID and keeps request metrics.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Header carries the request ID to the finance API.
const Header = "X-Request-ID"

type contextKey struct{}

// NewRequestID creates a unique request ID for tracing
func NewRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// RequestID extracts the request ID from context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// Ensure returns ctx and its request ID, adding a new ID when ctx has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := RequestID(ctx); id != "" {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}

// Metrics counts requests and their durations. The zero value is ready to use.
type Metrics struct {
	total      atomic.Int64
	failed     atomic.Int64
	durationUs atomic.Int64
}

// Snapshot is a point-in-time copy of [Metrics].
type Snapshot struct {
	TotalRequests   int64
	FailedRequests  int64
	AverageDuration time.Duration
}

// Record adds one finished request.
func (m *Metrics) Record(d time.Duration, failed bool) {
	m.total.Add(1)
	m.durationUs.Add(d.Microseconds())
	if failed {
		m.failed.Add(1)
	}
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		TotalRequests:  m.total.Load(),
		FailedRequests: m.failed.Load(),
	}
	if s.TotalRequests > 0 {
		s.AverageDuration = time.Duration(m.durationUs.Load()/s.TotalRequests) * time.Microsecond
	}
	return s
}
