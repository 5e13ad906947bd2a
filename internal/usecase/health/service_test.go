package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockIndexReader struct {
	size    int
	builtAt time.Time
}

func (m *mockIndexReader) Size() int          { return m.size }
func (m *mockIndexReader) BuiltAt() time.Time { return m.builtAt }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	builtAt := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	svc := New(&mockDBPinger{}, &mockIndexReader{size: 42, builtAt: builtAt})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["index"] != CheckOK {
		t.Errorf("expected index %q, got %q", CheckOK, r.Checks["index"])
	}
	if !r.IndexBuiltAt.Equal(builtAt) {
		t.Errorf("IndexBuiltAt = %v, want %v", r.IndexBuiltAt, builtAt)
	}
}

func TestCheck_DBErrorIsUnhealthy(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, &mockIndexReader{size: 42})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if r.Checks["index"] != CheckOK {
		t.Errorf("expected index %q, got %q", CheckOK, r.Checks["index"])
	}
}

func TestCheck_EmptyIndexIsDegraded(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockIndexReader{size: 0})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["index"] != CheckError {
		t.Errorf("expected index %q, got %q", CheckError, r.Checks["index"])
	}
	if !r.IndexBuiltAt.IsZero() {
		t.Errorf("IndexBuiltAt = %v, want zero before the first build", r.IndexBuiltAt)
	}
}

func TestCheck_BothFail(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("db down")}, &mockIndexReader{size: 0})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Error("expected database error")
	}
	if r.Checks["index"] != CheckError {
		t.Error("expected index error")
	}
}

func TestCheck_NoIndex(t *testing.T) {
	svc := New(&mockDBPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["index"]; ok {
		t.Error("index check should be absent when index is nil")
	}
}
