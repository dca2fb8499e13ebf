// internal/metrics/metrics_test.go
package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveInitialize("flow", "defaulted")
	m.ObserveSave("flow", nil)
	m.ObserveSave("flow", nil)
	m.ObserveSave("flow", errors.New("io"))
	m.ObserveModbus(3, 0)
	m.ObserveModbus(16, 2)

	if got := testutil.ToFloat64(m.initialize.WithLabelValues("flow", "defaulted")); got != 1 {
		t.Fatalf("initialize count: got=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.save.WithLabelValues("flow", ResultOK)); got != 2 {
		t.Fatalf("save ok count: got=%v want=2", got)
	}
	if got := testutil.ToFloat64(m.save.WithLabelValues("flow", ResultError)); got != 1 {
		t.Fatalf("save error count: got=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.modbus.WithLabelValues("16", "exception_2")); got != 1 {
		t.Fatalf("modbus exception count: got=%v want=1", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 5 {
		t.Fatalf("series count: got=%d want=5", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveInitialize("flow", "loaded")
	m.ObserveSave("flow", nil)
	m.ObserveModbus(3, 0)
}
