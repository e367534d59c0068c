package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder(10)
	r.Record(RequestMetrics{TotalTime: time.Millisecond, RequestBytes: 100, ResponseBytes: 200})
	r.Record(RequestMetrics{TotalTime: time.Millisecond, Deduplicated: true})
	r.Record(RequestMetrics{TotalTime: time.Millisecond, Batched: true, BatchSize: 2})

	agg := r.Snapshot()
	assert.Equal(t, uint64(3), agg.TotalRequests)
	assert.Equal(t, uint64(1), agg.DeduplicatedRequests)
	assert.Equal(t, uint64(1), agg.BatchedRequests)
	assert.Equal(t, uint64(100), agg.TotalBytesSent)
	assert.Equal(t, uint64(200), agg.TotalBytesReceived)
}

func TestRecorderPercentiles(t *testing.T) {
	r := NewRecorder(1000)
	for i := 1; i <= 100; i++ {
		r.Record(RequestMetrics{TotalTime: time.Duration(i) * time.Millisecond})
	}

	agg := r.Snapshot()
	assert.Equal(t, 50*time.Millisecond+500*time.Microsecond, agg.AvgLatency)
	assert.Equal(t, 51*time.Millisecond, agg.P50Latency)
	assert.Equal(t, 96*time.Millisecond, agg.P95Latency)
	assert.Equal(t, 100*time.Millisecond, agg.P99Latency)
}

func TestRecorderEvictsOldestFirst(t *testing.T) {
	r := NewRecorder(5)
	for i := 1; i <= 10; i++ {
		r.Record(RequestMetrics{TotalTime: time.Duration(i) * time.Millisecond})
	}

	agg := r.Snapshot()
	assert.Equal(t, uint64(10), agg.TotalRequests, "counters cover all calls")
	assert.Equal(t, 8*time.Millisecond, agg.P50Latency, "the window holds only the newest samples")
	assert.Equal(t, 10*time.Millisecond, agg.P99Latency)
}

func TestRecorderEmptySnapshot(t *testing.T) {
	r := NewRecorder(10)
	assert.Equal(t, AggregatedMetrics{}, r.Snapshot())
}

func TestRecorderReset(t *testing.T) {
	r := NewRecorder(10)
	r.Record(RequestMetrics{TotalTime: time.Millisecond, RequestBytes: 10})
	r.Reset()
	assert.Equal(t, AggregatedMetrics{}, r.Snapshot())

	r.Record(RequestMetrics{TotalTime: 2 * time.Millisecond})
	assert.Equal(t, uint64(1), r.Snapshot().TotalRequests, "recorder stays usable after reset")
}

func TestRecorderConcurrentRecord(t *testing.T) {
	r := NewRecorder(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Record(RequestMetrics{TotalTime: time.Millisecond})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(500), r.Snapshot().TotalRequests)
}
