package lumen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenfn/lumen-go/internal/batch"
	"github.com/lumenfn/lumen-go/internal/canon"
	"github.com/lumenfn/lumen-go/internal/dedup"
	"github.com/lumenfn/lumen-go/internal/log"
	"github.com/lumenfn/lumen-go/trace"
	"github.com/lumenfn/lumen-go/wire"
)

// Transport sends one serialized request and returns one serialized
// response. The engine is the only caller; implementations decide what the
// bytes travel over. Metadata carries the correlation ids out-of-band.
type Transport interface {
	Send(ctx context.Context, payload []byte, meta wire.Metadata) ([]byte, error)
}

// Target is the generic dispatch surface the engine satisfies.
type Target interface {
	Invoke(ctx context.Context, method string, params ...any) (any, error)
	HasMethod(name string) bool
}

// Engine turns logical calls into the minimum number of correctly ordered
// wire calls: identical concurrent calls share one request, distinct
// concurrent calls ride one batch, and dependent calls ride one pipeline.
type Engine struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger
	tracer    *trace.Tracer
	recorder  *trace.Recorder    // nil when metrics disabled
	dedup     *dedup.Cache       // nil when deduplication disabled
	batcher   *batch.Coordinator // nil when batching disabled
	seq       atomic.Uint64

	mu     sync.Mutex
	closed bool
}

var _ Target = (*Engine)(nil)

// New creates an engine over the given transport.
func New(transport Transport, cfg Config) (*Engine, error) {
	if transport == nil {
		return nil, errors.New("lumen: transport is required")
	}
	cfg = cfg.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent("engine")
	}

	e := &Engine{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
	}
	e.tracer = trace.NewTracer(cfg.ParentTraceID, cfg.Hooks, logger)
	if *cfg.Metrics.Enabled {
		e.recorder = trace.NewRecorder(cfg.Metrics.MaxSamples)
	}
	if *cfg.Deduplication.Enabled {
		e.dedup = dedup.NewCache(cfg.Deduplication.TTL)
	}
	if *cfg.Batching.Enabled {
		e.batcher = batch.New(cfg.Batching.Window, cfg.Batching.MaxSize, e.flushBatch)
	}
	return e, nil
}

// TraceID returns the engine's trace id. Pass it as ParentTraceID to a child
// engine to keep both in one trace.
func (e *Engine) TraceID() string {
	return e.tracer.TraceID()
}

// HasMethod reports whether a method name is invokable through this engine.
func (e *Engine) HasMethod(name string) bool {
	return name != "" && !isBlockedMethod(name)
}

// Invoke dispatches one method call and blocks until its result arrives.
// Identical concurrent calls inside the deduplication window share one wire
// call; distinct concurrent calls are batched together when batching is on.
func (e *Engine) Invoke(ctx context.Context, method string, params ...any) (any, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	span := e.tracer.StartSpan(trace.OpInvoke, method, "")

	if isBlockedMethod(method) {
		err := newBlockedMethodError(method)
		e.tracer.FailSpan(span, err)
		return nil, err
	}
	if params == nil {
		params = []any{}
	}

	if e.dedup == nil {
		return e.dispatch(ctx, span, method, params, start)
	}

	key := dedup.Key(method, canon.String(params))
	entry, owner := e.dedup.GetOrCreate(key)
	if !owner {
		return e.waitShared(ctx, span, entry, start)
	}

	// Owner of the cache entry: issue the call, publish its outcome to every
	// sharer, then let the entry age out TTL after settling.
	if e.batcher != nil {
		item := batch.NewItem(e.newCall(method, params, span), span, start)
		if err := e.batcher.Enqueue(item); err != nil {
			e.tracer.FailSpan(span, ErrDisposed)
			entry.Resolve(nil, ErrDisposed)
			e.dedup.ScheduleExpiry(key, entry)
			return nil, ErrDisposed
		}
		// Resolution is decoupled from this caller's ctx so sharers always
		// receive the wire call's real outcome even if the owner gives up.
		go func() {
			out := <-item.Outcome()
			entry.Resolve(out.Value, out.Err)
			e.dedup.ScheduleExpiry(key, entry)
		}()
		return entry.Wait(ctx)
	}

	value, err := e.sendSingle(ctx, span, e.newCall(method, params, span), start)
	entry.Resolve(value, err)
	e.dedup.ScheduleExpiry(key, entry)
	return value, err
}

// waitShared joins an in-flight identical call. The sharer gets its own span
// and its own timing, measured from its own start to the shared resolution.
func (e *Engine) waitShared(ctx context.Context, span *trace.Span, entry *dedup.Entry, start time.Time) (any, error) {
	e.logger.Debug("deduplicated call", "method", span.Method)

	value, err := entry.Wait(ctx)
	elapsed := time.Since(start)
	m := trace.RequestMetrics{
		NetworkTime:  elapsed,
		TotalTime:    elapsed,
		Deduplicated: true,
	}
	if err != nil {
		e.tracer.FailSpan(span, err)
		e.record(m)
		return nil, err
	}
	e.tracer.EndSpan(span, m)
	e.record(m)
	return value, nil
}

// dispatch routes one owned call through the batch queue or sends it
// directly.
func (e *Engine) dispatch(ctx context.Context, span *trace.Span, method string, params []any, start time.Time) (any, error) {
	call := e.newCall(method, params, span)

	if e.batcher == nil {
		return e.sendSingle(ctx, span, call, start)
	}

	item := batch.NewItem(call, span, start)
	if err := e.batcher.Enqueue(item); err != nil {
		e.tracer.FailSpan(span, ErrDisposed)
		return nil, ErrDisposed
	}
	return item.Wait(ctx)
}

func (e *Engine) newCall(method string, params []any, span *trace.Span) wire.Call {
	return wire.Call{
		ID:      e.nextID("req"),
		Method:  method,
		Params:  params,
		TraceID: span.TraceID,
		SpanID:  span.SpanID,
	}
}

// sendSingle performs one wire call end to end: encode, send under the
// configured deadline, decode, close the span, record metrics.
func (e *Engine) sendSingle(ctx context.Context, span *trace.Span, call wire.Call, start time.Time) (any, error) {
	serStart := time.Now()
	payload, err := wire.EncodeCall(&call)
	if err != nil {
		perr := newProtocolError(fmt.Sprintf("encode call: %v", err))
		e.tracer.FailSpan(span, perr)
		return nil, perr
	}
	serTime := time.Since(serStart)

	meta := wire.Metadata{
		TraceID:      call.TraceID,
		SpanID:       call.SpanID,
		ParentSpanID: call.ParentSpanID,
	}
	netStart := time.Now()
	raw, err := e.send(ctx, payload, meta)
	netTime := time.Since(netStart)
	if err != nil {
		terr := newTransportError(err)
		e.tracer.FailSpan(span, terr)
		return nil, terr
	}

	desStart := time.Now()
	resp, err := wire.DecodeResponse(raw)
	if err != nil {
		perr := newProtocolError(err.Error())
		e.tracer.FailSpan(span, perr)
		return nil, perr
	}
	if resp.Type != wire.TypeSingle {
		perr := newProtocolError(fmt.Sprintf("expected single response, got %q", resp.Type))
		e.tracer.FailSpan(span, perr)
		return nil, perr
	}
	if resp.IsError() {
		aerr := newAppError(resp)
		e.tracer.FailSpan(span, aerr)
		return nil, aerr
	}
	desTime := time.Since(desStart)

	m := trace.RequestMetrics{
		SerializationTime:   serTime,
		NetworkTime:         netTime,
		DeserializationTime: desTime,
		TotalTime:           time.Since(start),
		RequestBytes:        len(payload),
		ResponseBytes:       len(raw),
	}
	e.tracer.EndSpan(span, m)
	e.record(m)
	return resp.Result, nil
}

// flushBatch is the coordinator's flush callback. It owns resolving every
// drained item. A drained queue of one skips the batch envelope entirely.
func (e *Engine) flushBatch(items []*batch.Item) {
	if len(items) == 1 {
		it := items[0]
		value, err := e.sendSingle(context.Background(), it.Span, it.Call, it.Start)
		it.Resolve(value, err)
		return
	}

	n := len(items)
	e.logger.Debug("flushing batch", "size", n)
	batchSpan := e.tracer.StartSpan(trace.OpBatch, wire.BatchMethod, "")

	env := wire.Batch{TraceID: e.tracer.TraceID(), Calls: make([]wire.Call, 0, n)}
	for _, it := range items {
		call := it.Call
		call.ParentSpanID = batchSpan.SpanID
		env.Calls = append(env.Calls, call)
	}

	serStart := time.Now()
	payload, err := wire.EncodeBatch(&env)
	if err != nil {
		e.rejectBatch(items, batchSpan, newProtocolError(fmt.Sprintf("encode batch: %v", err)))
		return
	}
	serTime := time.Since(serStart)

	meta := wire.Metadata{TraceID: env.TraceID, SpanID: batchSpan.SpanID, Batch: true}
	netStart := time.Now()
	raw, err := e.send(context.Background(), payload, meta)
	netTime := time.Since(netStart)
	if err != nil {
		e.rejectBatch(items, batchSpan, newTransportError(err))
		return
	}

	desStart := time.Now()
	resp, err := wire.DecodeResponse(raw)
	if err != nil {
		e.rejectBatch(items, batchSpan, newProtocolError(err.Error()))
		return
	}
	desTime := time.Since(desStart)

	if resp.Type == wire.TypeSingle {
		// A single error response applies to the whole batch.
		if resp.IsError() {
			e.rejectBatch(items, batchSpan, newAppError(resp))
			return
		}
		e.rejectBatch(items, batchSpan, newProtocolError("single non-error response to a batch request"))
		return
	}
	if len(resp.Responses) != n {
		e.rejectBatch(items, batchSpan, newProtocolError(
			fmt.Sprintf("batch response count mismatch: got %d, want %d", len(resp.Responses), n)))
		return
	}

	// Per-item timing and sizes are an even split of the one round trip;
	// exact attribution is not separable from a single network call.
	netShare := netTime / time.Duration(n)
	serShare := serTime / time.Duration(n)
	desShare := desTime / time.Duration(n)
	reqShare := len(payload) / n
	respShare := len(raw) / n

	for i, it := range items {
		r := resp.Responses[i]
		if r.IsError() {
			aerr := newAppError(&r)
			e.tracer.FailSpan(it.Span, aerr)
			it.Resolve(nil, aerr)
			continue
		}
		m := trace.RequestMetrics{
			SerializationTime:   serShare,
			NetworkTime:         netShare,
			DeserializationTime: desShare,
			TotalTime:           time.Since(it.Start),
			RequestBytes:        reqShare,
			ResponseBytes:       respShare,
			Batched:             true,
			BatchSize:           n,
		}
		e.tracer.EndSpan(it.Span, m)
		e.record(m)
		it.Resolve(r.Result, nil)
	}

	e.tracer.EndSpan(batchSpan, trace.RequestMetrics{
		SerializationTime:   serTime,
		NetworkTime:         netTime,
		DeserializationTime: desTime,
		TotalTime:           serTime + netTime + desTime,
		RequestBytes:        len(payload),
		ResponseBytes:       len(raw),
		Batched:             true,
		BatchSize:           n,
	})
}

// rejectBatch delivers one failure to every item in a batch. Network-class
// errors are not attributable to a subset of a batch.
func (e *Engine) rejectBatch(items []*batch.Item, batchSpan *trace.Span, err error) {
	e.logger.Debug("batch failed", "size", len(items), "error", err)
	e.tracer.FailSpan(batchSpan, err)
	for _, it := range items {
		e.tracer.FailSpan(it.Span, err)
		it.Resolve(nil, err)
	}
}

// Flush sends any queued batch immediately instead of waiting for the window
// timer. It returns once the batch has settled.
func (e *Engine) Flush() {
	if e.batcher != nil {
		e.batcher.Flush()
	}
}

// Metrics returns an aggregated view of the recorded sample window. The zero
// value is returned when metrics are disabled.
func (e *Engine) Metrics() trace.AggregatedMetrics {
	if e.recorder == nil {
		return trace.AggregatedMetrics{}
	}
	return e.recorder.Snapshot()
}

// ResetMetrics zeroes all counters and drops the sample window.
func (e *Engine) ResetMetrics() {
	if e.recorder != nil {
		e.recorder.Reset()
	}
}

// Close disposes the engine: the batch timer is cancelled, queued items are
// rejected, the dedup cache is cleared, and all later calls fail fast with
// ErrDisposed. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.batcher != nil {
		for _, it := range e.batcher.Close() {
			e.tracer.FailSpan(it.Span, ErrDisposed)
			it.Resolve(nil, ErrDisposed)
		}
	}
	if e.dedup != nil {
		e.dedup.Clear()
	}
	e.logger.Debug("engine disposed", "trace_id", e.tracer.TraceID())
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDisposed
	}
	return nil
}

// send runs one transport call under the configured deadline.
func (e *Engine) send(ctx context.Context, payload []byte, meta wire.Metadata) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.transport.Send(ctx, payload, meta)
}

func (e *Engine) record(m trace.RequestMetrics) {
	if e.recorder != nil {
		e.recorder.Record(m)
	}
}

func (e *Engine) nextID(kind string) string {
	return fmt.Sprintf("%s-%d", kind, e.seq.Add(1))
}
