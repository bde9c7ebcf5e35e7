package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes window snapshots and controller state as Prometheus metrics.
type Exporter struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	bytes           *prometheus.CounterVec
	rps             prometheus.Gauge
	target          prometheus.Gauge
	scaleDownActive prometheus.Gauge
}

// NewExporter registers the rampfire metrics on a private registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rampfire",
			Name:      "requests_total",
			Help:      "Completed requests by outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rampfire",
			Name:      "bytes_total",
			Help:      "Bytes transferred by direction.",
		}, []string{"direction"}),
		rps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rampfire",
			Name:      "window_requests_per_second",
			Help:      "Request rate observed over the last window.",
		}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rampfire",
			Name:      "target_concurrency",
			Help:      "Number of requests the scheduler keeps in flight.",
		}),
		scaleDownActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rampfire",
			Name:      "scale_down_active",
			Help:      "1 while scale-up is latched after a failure-triggered scale-down.",
		}),
	}
	e.registry.MustRegister(e.requests, e.bytes, e.rps, e.target, e.scaleDownActive)
	return e
}

// Observe adds the window's deltas to the counters and updates the gauges.
func (e *Exporter) Observe(snap WindowSnapshot, target int, scaleDownActive bool) {
	if e == nil {
		return
	}
	e.requests.WithLabelValues("success").Add(float64(snap.Successes))
	e.requests.WithLabelValues("failure").Add(float64(snap.Failures))
	e.bytes.WithLabelValues("sent").Add(float64(snap.BytesSent))
	e.bytes.WithLabelValues("received").Add(float64(snap.BytesReceived))
	e.rps.Set(snap.RequestsPerSecond())
	e.target.Set(float64(target))
	if scaleDownActive {
		e.scaleDownActive.Set(1)
	} else {
		e.scaleDownActive.Set(0)
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{DisableCompression: true})
}
