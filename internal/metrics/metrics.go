package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
)

// Gauges supplies the current values behind the collector's gauges. Nil
// functions read as zero.
type Gauges struct {
	Networks    func() int
	Subscribers func() int
}

// Collector counts connection events and exposes connection state gauges. It
// is a connstate.Emitter, so it can sit next to the Hub in a MultiEmitter.
type Collector struct {
	gatherer prometheus.Gatherer

	Events *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer, gauges Gauges) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connstate_events_total",
		Help: "Connection lifecycle events emitted, labeled by event and connection type.",
	}, []string{"event", "connection_type"})
	events, err := registerCounterVec(reg, events, "connstate_events_total")
	if err != nil {
		return nil, err
	}

	if err := registerGaugeFunc(reg, "connstate_networks",
		"Internet-capable networks currently registered.", gauges.Networks); err != nil {
		return nil, err
	}
	if err := registerGaugeFunc(reg, "connstate_event_subscribers",
		"Live event stream subscriptions.", gauges.Subscribers); err != nil {
		return nil, err
	}

	return &Collector{
		gatherer: gatherer,
		Events:   events,
	}, nil
}

func (c *Collector) Emit(ev connstate.Event) {
	if c == nil || c.Events == nil {
		return
	}
	c.Events.WithLabelValues(string(ev.Type), ev.Info.Type.String()).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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

func registerGaugeFunc(reg prometheus.Registerer, name, help string, value func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
		if value == nil {
			return 0
		}
		return float64(value())
	})
	if err := reg.Register(gauge); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	return nil
}
