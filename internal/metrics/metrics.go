// internal/metrics/metrics.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nvparam"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds every collector of the daemon. A nil *Metrics records nothing.
type Metrics struct {
	initialize *prometheus.CounterVec
	save       *prometheus.CounterVec
	modbus     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		initialize: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "initialize_total",
				Help:      "Count of persistence initializations by resulting state.",
			},
			[]string{"registry", "state"},
		),
		save: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "save_total",
				Help:      "Count of value store commits to flash by result.",
			},
			[]string{"registry", "result"},
		),
		modbus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "modbus",
				Name:      "requests_total",
				Help:      "Count of Modbus requests served by function code and result.",
			},
			[]string{"function", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.initialize, m.save, m.modbus)
	}
	return m
}

func (m *Metrics) ObserveInitialize(registry, state string) {
	if m == nil {
		return
	}
	m.initialize.WithLabelValues(registry, state).Inc()
}

func (m *Metrics) ObserveSave(registry string, err error) {
	if m == nil {
		return
	}
	m.save.WithLabelValues(registry, result(err)).Inc()
}

// ObserveModbus counts one request; exception 0 means success.
func (m *Metrics) ObserveModbus(function byte, exception byte) {
	if m == nil {
		return
	}
	res := ResultOK
	if exception != 0 {
		res = "exception_" + strconv.Itoa(int(exception))
	}
	m.modbus.WithLabelValues(strconv.Itoa(int(function)), res).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
