package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("Expected non-nil Metrics")
	}
	if m.OperationsTotal == nil {
		t.Error("Expected OperationsTotal to be initialized")
	}
	if m.LockWaitSeconds == nil {
		t.Error("Expected LockWaitSeconds to be initialized")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveOperation("createSchema", "success", 5*time.Millisecond)

	handler := m.Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "dispatcher_operations_total") {
		t.Error("Expected metrics output to contain dispatcher_operations_total")
	}
	if !strings.Contains(string(body), "go_") {
		t.Error("Expected metrics output to contain Go runtime metrics")
	}
}

func TestMetrics_ObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("loadSchema", "success", 10*time.Millisecond)
	m.ObserveOperation("loadSchema", "error", 2*time.Millisecond)
}

func TestMetrics_ObserveLockWait(t *testing.T) {
	m := New()
	m.ObserveLockWait("lake.pg", "write", time.Millisecond)
	m.ObserveLockWait("lake.pg.s1", "read", time.Millisecond)
}

func TestMetrics_IncStoreDegraded(t *testing.T) {
	m := New()
	m.IncStoreDegraded("createSchema")
	m.IncStoreDegraded("dropSchema")
}
