// Package metrics bundles the Prometheus metrics the engine reports through
// the upward GetMetrics call.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles procedure-runtime and timer-service metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	ProcLaunches    *prometheus.CounterVec
	ProcCompletions *prometheus.CounterVec
	ProcDurations   *prometheus.HistogramVec
	ProcInFlight    prometheus.Gauge
	TimersArmed     prometheus.Gauge
	EventsDropped   *prometheus.CounterVec
}

// New registers engine metrics against reg, defaulting to the global
// registry when reg is nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	launches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rrc_procedure_launches_total",
		Help: "Total number of procedure launch attempts, labeled by procedure and result.",
	}, []string{"procedure", "result"}), "rrc_procedure_launches_total")
	if err != nil {
		return nil, err
	}

	completions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rrc_procedure_completions_total",
		Help: "Total number of procedure completions, labeled by procedure and outcome.",
	}, []string{"procedure", "outcome"}), "rrc_procedure_completions_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rrc_procedure_duration_seconds",
		Help:    "Wall-clock duration of a procedure from launch to then(), in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"procedure"}), "rrc_procedure_duration_seconds")
	if err != nil {
		return nil, err
	}

	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rrc_procedures_in_flight",
		Help: "Current number of running procedure handles.",
	}), "rrc_procedures_in_flight")
	if err != nil {
		return nil, err
	}

	timersArmed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rrc_timers_armed",
		Help: "Current number of armed timers in the timer service.",
	}), "rrc_timers_armed")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rrc_events_dropped_total",
		Help: "Total number of events dropped because no procedure was subscribed, labeled by event kind.",
	}, []string{"event"}), "rrc_events_dropped_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		ProcLaunches:    launches,
		ProcCompletions: completions,
		ProcDurations:   durations,
		ProcInFlight:    inFlight,
		TimersArmed:     timersArmed,
		EventsDropped:   dropped,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordLaunch records a launch attempt outcome: "ok" or "busy".
func (c *Collector) RecordLaunch(procedure, result string) {
	if c == nil || c.ProcLaunches == nil {
		return
	}
	c.ProcLaunches.WithLabelValues(procedure, result).Inc()
}

// RecordCompletion records a terminal outcome: "success" or "error".
func (c *Collector) RecordCompletion(procedure, outcome string, seconds float64) {
	if c == nil {
		return
	}
	if c.ProcCompletions != nil {
		c.ProcCompletions.WithLabelValues(procedure, outcome).Inc()
	}
	if c.ProcDurations != nil {
		c.ProcDurations.WithLabelValues(procedure).Observe(seconds)
	}
}

// SetInFlight sets the current count of running procedure handles.
func (c *Collector) SetInFlight(n int) {
	if c == nil || c.ProcInFlight == nil {
		return
	}
	c.ProcInFlight.Set(float64(n))
}

// SetTimersArmed sets the current count of armed timers.
func (c *Collector) SetTimersArmed(n int) {
	if c == nil || c.TimersArmed == nil {
		return
	}
	c.TimersArmed.Set(float64(n))
}

// RecordDroppedEvent records an event dropped for lack of a subscriber.
func (c *Collector) RecordDroppedEvent(event string) {
	if c == nil || c.EventsDropped == nil {
		return
	}
	c.EventsDropped.WithLabelValues(event).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
