package trace

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if !strings.HasPrefix(a, "req_") || len(a) != len("req_")+16 {
		t.Errorf("unexpected request ID %q", a)
	}
	if a == b {
		t.Error("request IDs must be unique")
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if id == "" || RequestID(ctx) != id {
		t.Fatalf("Ensure() did not store the new ID, got %q", RequestID(ctx))
	}
	again, same := Ensure(ctx)
	if same != id || RequestID(again) != id {
		t.Errorf("Ensure() replaced an existing ID: %q -> %q", id, same)
	}
	if RequestID(context.Background()) != "" {
		t.Error("empty context must have no request ID")
	}
}

func TestMetrics(t *testing.T) {
	var m Metrics
	if s := m.Snapshot(); s.TotalRequests != 0 || s.AverageDuration != 0 {
		t.Errorf("zero metrics expected, got %+v", s)
	}
	m.Record(10*time.Millisecond, false)
	m.Record(30*time.Millisecond, true)

	s := m.Snapshot()
	if s.TotalRequests != 2 || s.FailedRequests != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.AverageDuration != 20*time.Millisecond {
		t.Errorf("AverageDuration = %v, want 20ms", s.AverageDuration)
	}
}
