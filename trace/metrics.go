package trace

import (
	"sort"
	"sync"
	"time"
)

// RequestMetrics describes one completed call: either its own round trip or
// its attributed share of a batch's round trip.
type RequestMetrics struct {
	SerializationTime   time.Duration
	NetworkTime         time.Duration
	DeserializationTime time.Duration
	TotalTime           time.Duration
	RequestBytes        int
	ResponseBytes       int
	Deduplicated        bool
	Batched             bool
	BatchSize           int
}

// AggregatedMetrics is a point-in-time view over the recorded sample window.
type AggregatedMetrics struct {
	TotalRequests        uint64
	DeduplicatedRequests uint64
	BatchedRequests      uint64
	AvgLatency           time.Duration
	P50Latency           time.Duration
	P95Latency           time.Duration
	P99Latency           time.Duration
	TotalBytesSent       uint64
	TotalBytesReceived   uint64
}

// Recorder accumulates per-call metrics into counters and a bounded latency
// ring. Once the ring is full the oldest sample is evicted first; this is a
// stand-in for reservoir sampling and is not statistically unbiased.
type Recorder struct {
	mu      sync.Mutex
	samples []time.Duration
	start   int
	size    int

	total         uint64
	deduplicated  uint64
	batched       uint64
	bytesSent     uint64
	bytesReceived uint64
}

// DefaultMaxSamples bounds the latency ring when no size is configured.
const DefaultMaxSamples = 1000

// NewRecorder creates a recorder holding at most maxSamples latency samples.
func NewRecorder(maxSamples int) *Recorder {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Recorder{samples: make([]time.Duration, maxSamples)}
}

// Record folds one completed call into the counters and the sample ring.
func (r *Recorder) Record(m RequestMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if m.Deduplicated {
		r.deduplicated++
	}
	if m.Batched {
		r.batched++
	}
	r.bytesSent += uint64(m.RequestBytes)
	r.bytesReceived += uint64(m.ResponseBytes)

	if r.size < len(r.samples) {
		r.samples[(r.start+r.size)%len(r.samples)] = m.TotalTime
		r.size++
	} else {
		r.samples[r.start] = m.TotalTime
		r.start = (r.start + 1) % len(r.samples)
	}
}

// Snapshot derives aggregated metrics from the current window. All fields are
// zero when nothing has been recorded.
func (r *Recorder) Snapshot() AggregatedMetrics {
	r.mu.Lock()
	agg := AggregatedMetrics{
		TotalRequests:        r.total,
		DeduplicatedRequests: r.deduplicated,
		BatchedRequests:      r.batched,
		TotalBytesSent:       r.bytesSent,
		TotalBytesReceived:   r.bytesReceived,
	}
	sorted := make([]time.Duration, r.size)
	for i := 0; i < r.size; i++ {
		sorted[i] = r.samples[(r.start+i)%len(r.samples)]
	}
	r.mu.Unlock()

	if len(sorted) == 0 {
		return agg
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	agg.AvgLatency = sum / time.Duration(len(sorted))
	agg.P50Latency = percentile(sorted, 0.5)
	agg.P95Latency = percentile(sorted, 0.95)
	agg.P99Latency = percentile(sorted, 0.99)
	return agg
}

// Reset zeroes all counters and drops every sample.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.size = 0
	r.total = 0
	r.deduplicated = 0
	r.batched = 0
	r.bytesSent = 0
	r.bytesReceived = 0
}

// percentile picks sorted[floor(n*q)], clamped to the last element.
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
