// Package trace provides span lifecycle tracking, pluggable tracing hooks,
// and a bounded metrics recorder for the dispatch engine.
package trace

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Span operations.
const (
	OpInvoke   = "invoke"
	OpBatch    = "batch"
	OpPipeline = "pipeline"
)

// Span is one instrumented logical operation. It is created at call start and
// closed exactly once, by either EndSpan or FailSpan.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Method       string
	Operation    string
	StartTime    time.Time
	Attributes   map[string]string

	ended atomic.Bool
}

// Ended reports whether the span has received its terminal event.
func (s *Span) Ended() bool {
	return s.ended.Load()
}

// Hooks are optional callbacks invoked at span boundaries. All are
// synchronous and best-effort: a panic inside a hook is swallowed so it can
// never mask the outcome of the call being traced.
type Hooks struct {
	OnSpanStart func(*Span)
	OnSpanEnd   func(*Span, RequestMetrics)
	OnError     func(*Span, error)
}

// Tracer mints spans for one engine instance. All spans share the tracer's
// trace id; span ids come from an instance-scoped counter so parallel engines
// never interfere.
type Tracer struct {
	traceID string
	hooks   Hooks
	logger  *slog.Logger
	spanSeq atomic.Uint64
}

// NewTracer creates a tracer. An empty traceID mints a fresh one; passing a
// parent engine's trace id makes this tracer's spans children of that trace.
func NewTracer(traceID string, hooks Hooks, logger *slog.Logger) *Tracer {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{traceID: traceID, hooks: hooks, logger: logger}
}

// TraceID returns the trace id shared by every span this tracer mints.
func (t *Tracer) TraceID() string {
	return t.traceID
}

// StartSpan opens a span and reports it to the OnSpanStart hook.
func (t *Tracer) StartSpan(operation, method, parentSpanID string) *Span {
	s := &Span{
		TraceID:      t.traceID,
		SpanID:       fmt.Sprintf("span-%d", t.spanSeq.Add(1)),
		ParentSpanID: parentSpanID,
		Method:       method,
		Operation:    operation,
		StartTime:    time.Now(),
		Attributes:   map[string]string{"operation": operation},
	}
	if t.hooks.OnSpanStart != nil {
		t.safely(func() { t.hooks.OnSpanStart(s) })
	}
	return s
}

// EndSpan closes a span successfully, carrying the call's metrics. A span
// that already received its terminal event is left untouched.
func (t *Tracer) EndSpan(s *Span, m RequestMetrics) {
	if s == nil || !s.ended.CompareAndSwap(false, true) {
		return
	}
	if t.hooks.OnSpanEnd != nil {
		t.safely(func() { t.hooks.OnSpanEnd(s, m) })
	}
}

// FailSpan closes a span with an error. A nil span is allowed: the error is
// reported to OnError as a standalone event with no span context.
func (t *Tracer) FailSpan(s *Span, err error) {
	if s != nil && !s.ended.CompareAndSwap(false, true) {
		return
	}
	if t.hooks.OnError != nil {
		t.safely(func() { t.hooks.OnError(s, err) })
	}
}

// safely runs a hook and absorbs any panic.
func (t *Tracer) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("tracing hook panicked", "panic", r)
		}
	}()
	fn()
}
