// Package promhook exports engine span outcomes to Prometheus. It implements
// the tracing-hook seam, so the engine itself stays unaware of Prometheus.
package promhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lumenfn/lumen-go/trace"
)

// Collector holds the Prometheus series fed from span events.
type Collector struct {
	duration      *prometheus.HistogramVec
	requests      *prometheus.CounterVec
	deduplicated  prometheus.Counter
	batched       prometheus.Counter
	bytesSent     prometheus.Counter
	bytesReceived prometheus.Counter
}

// New registers the collector's series with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lumen_request_duration_seconds",
			Help:    "Total duration of dispatched calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "method"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_requests_total",
			Help: "Total number of dispatched calls",
		}, []string{"operation", "status"}),
		deduplicated: f.NewCounter(prometheus.CounterOpts{
			Name: "lumen_deduplicated_requests_total",
			Help: "Calls served from a shared in-flight result",
		}),
		batched: f.NewCounter(prometheus.CounterOpts{
			Name: "lumen_batched_requests_total",
			Help: "Calls that travelled inside a batch envelope",
		}),
		bytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "lumen_bytes_sent_total",
			Help: "Request payload bytes sent (attributed share for batches)",
		}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "lumen_bytes_received_total",
			Help: "Response payload bytes received (attributed share for batches)",
		}),
	}
}

// Hooks returns the tracing hooks to pass in the engine config.
func (c *Collector) Hooks() trace.Hooks {
	return trace.Hooks{
		OnSpanEnd: c.onSpanEnd,
		OnError:   c.onError,
	}
}

func (c *Collector) onSpanEnd(s *trace.Span, m trace.RequestMetrics) {
	c.duration.WithLabelValues(s.Operation, s.Method).Observe(m.TotalTime.Seconds())
	c.requests.WithLabelValues(s.Operation, "ok").Inc()
	c.bytesSent.Add(float64(m.RequestBytes))
	c.bytesReceived.Add(float64(m.ResponseBytes))
	if m.Deduplicated {
		c.deduplicated.Inc()
	}
	if m.Batched {
		c.batched.Inc()
	}
}

func (c *Collector) onError(s *trace.Span, _ error) {
	// A nil span is a standalone error event with no call context.
	operation := "none"
	if s != nil {
		operation = s.Operation
	}
	c.requests.WithLabelValues(operation, "error").Inc()
}
