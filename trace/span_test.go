package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerMintsTraceID(t *testing.T) {
	tr := NewTracer("", Hooks{}, nil)
	assert.NotEmpty(t, tr.TraceID())

	child := NewTracer(tr.TraceID(), Hooks{}, nil)
	assert.Equal(t, tr.TraceID(), child.TraceID())
}

func TestSpanIDsAreInstanceScoped(t *testing.T) {
	a := NewTracer("", Hooks{}, nil)
	b := NewTracer("", Hooks{}, nil)

	s1 := a.StartSpan(OpInvoke, "m", "")
	s2 := a.StartSpan(OpInvoke, "m", "")
	s3 := b.StartSpan(OpInvoke, "m", "")

	assert.NotEqual(t, s1.SpanID, s2.SpanID)
	assert.Equal(t, s1.SpanID, s3.SpanID, "independent tracers count independently")
}

func TestSpanLifecycleHooks(t *testing.T) {
	var started, ended []*Span
	var failed []error

	hooks := Hooks{
		OnSpanStart: func(s *Span) { started = append(started, s) },
		OnSpanEnd:   func(s *Span, _ RequestMetrics) { ended = append(ended, s) },
		OnError:     func(_ *Span, err error) { failed = append(failed, err) },
	}
	tr := NewTracer("", hooks, nil)

	ok := tr.StartSpan(OpInvoke, "getUser", "")
	bad := tr.StartSpan(OpInvoke, "getOther", "")
	tr.EndSpan(ok, RequestMetrics{})
	tr.FailSpan(bad, errors.New("boom"))

	require.Len(t, started, 2)
	require.Len(t, ended, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "getUser", ended[0].Method)
	assert.True(t, ok.Ended())
	assert.True(t, bad.Ended())
}

func TestSpanEndsExactlyOnce(t *testing.T) {
	var ends, fails int
	hooks := Hooks{
		OnSpanEnd: func(*Span, RequestMetrics) { ends++ },
		OnError:   func(*Span, error) { fails++ },
	}
	tr := NewTracer("", hooks, nil)

	s := tr.StartSpan(OpInvoke, "m", "")
	tr.EndSpan(s, RequestMetrics{})
	tr.EndSpan(s, RequestMetrics{})
	tr.FailSpan(s, errors.New("late"))

	assert.Equal(t, 1, ends, "a settled span ignores later terminal events")
	assert.Equal(t, 0, fails)
}

func TestFailSpanNilSpan(t *testing.T) {
	var got error
	tr := NewTracer("", Hooks{OnError: func(s *Span, err error) {
		assert.Nil(t, s)
		got = err
	}}, nil)

	tr.FailSpan(nil, errors.New("standalone"))
	require.Error(t, got)
}

func TestHookPanicIsSwallowed(t *testing.T) {
	hooks := Hooks{
		OnSpanStart: func(*Span) { panic("start") },
		OnSpanEnd:   func(*Span, RequestMetrics) { panic("end") },
		OnError:     func(*Span, error) { panic("error") },
	}
	tr := NewTracer("", hooks, nil)

	assert.NotPanics(t, func() {
		s := tr.StartSpan(OpInvoke, "m", "")
		tr.EndSpan(s, RequestMetrics{})
		tr.FailSpan(tr.StartSpan(OpInvoke, "m", ""), errors.New("boom"))
	})
}
