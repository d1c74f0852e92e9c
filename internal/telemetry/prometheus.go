package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Counters is a small registry of prometheus/client_golang counter and
// gauge vectors; FromCounter/FromGauge mirror a single counter or gauge
// into the telemetry tree so the same number is visible both ways.
type Counters struct {
	Registry *prometheus.Registry
}

// NewCounters builds a fresh, isolated Prometheus registry (rather than
// relying on the global DefaultRegisterer) so unit tests don't collide
// across packages.
func NewCounters() *Counters {
	return &Counters{Registry: prometheus.NewRegistry()}
}

// NewCounterVec creates and registers a CounterVec under reg.
func (c *Counters) NewCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	c.Registry.MustRegister(vec)
	return vec
}

// NewGaugeVec creates and registers a GaugeVec under reg.
func (c *Counters) NewGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	c.Registry.MustRegister(vec)
	return vec
}

// FromCounter adapts a single prometheus.Counter into a telemetry leaf
// callback, the bridge requires between the Prometheus
// vectors and the introspection tree.
func FromCounter(c prometheus.Counter, unit string) func() Content {
	return func() Content {
		v := readMetricValue(c)
		if unit == "" {
			return Scalar(v)
		}
		return ScalarWithUnit{Value: v, Unit: unit}
	}
}

// FromGauge adapts a single prometheus.Gauge the same way.
func FromGauge(g prometheus.Gauge, unit string) func() Content {
	return func() Content {
		v := readMetricValue(g)
		if unit == "" {
			return Scalar(v)
		}
		return ScalarWithUnit{Value: v, Unit: unit}
	}
}

// readMetricValue extracts the numeric value out of a Counter/Gauge via
// its protobuf Write method, the standard way to read a metric's current
// value without going through the registry's scrape path.
func readMetricValue(m prometheus.Metric) float64 {
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		return 0
	}
	if c := pb.GetCounter(); c != nil {
		return c.GetValue()
	}
	if g := pb.GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}
