package lumen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenfn/lumen-go/trace"
	"github.com/lumenfn/lumen-go/wire"
)

// chainOp is one recorded step of a chain. Local steps are plain field
// lookups resolved against the remote result; everything else goes to the
// server.
type chainOp struct {
	id     string
	method string
	params []any
	local  bool
}

// Chain is a pipeline of dependent operations built before any network round
// trip. Chains are immutable: Call and Get return a new chain, so several
// chains may branch from a shared prefix and resolve independently.
type Chain struct {
	eng *Engine
	ops []chainOp
}

// Pipeline starts a new empty chain.
func (e *Engine) Pipeline() *Chain {
	return &Chain{eng: e}
}

// Call appends a server operation that consumes the result of the previous
// server operation in this chain.
func (c *Chain) Call(method string, params ...any) *Chain {
	if params == nil {
		params = []any{}
	}
	return c.extend(chainOp{
		id:     c.eng.nextID("op"),
		method: method,
		params: params,
	})
}

// Get appends a local field lookup, applied to the resolved result without a
// network round trip.
func (c *Chain) Get(field string) *Chain {
	return c.extend(chainOp{
		id:     c.eng.nextID("op"),
		method: field,
		local:  true,
	})
}

func (c *Chain) extend(op chainOp) *Chain {
	ops := make([]chainOp, len(c.ops), len(c.ops)+1)
	copy(ops, c.ops)
	return &Chain{eng: c.eng, ops: append(ops, op)}
}

// Resolve executes the chain: server operations travel as one pipeline wire
// call in dependency order, then local lookups walk the resolved value.
func (c *Chain) Resolve(ctx context.Context) (any, error) {
	e := c.eng
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	var server, local []chainOp
	for _, op := range c.ops {
		if op.local {
			local = append(local, op)
		} else {
			server = append(server, op)
		}
	}
	if len(server) == 0 {
		return nil, errors.New("lumen: pipeline has no remote operations")
	}

	start := time.Now()
	span := e.tracer.StartSpan(trace.OpPipeline, server[0].method, "")

	for _, op := range server {
		if isBlockedMethod(op.method) {
			err := newBlockedMethodError(op.method)
			e.tracer.FailSpan(span, err)
			return nil, err
		}
	}

	pops := make([]wire.PipelineOp, len(server))
	prev := ""
	for i, op := range server {
		pops[i] = wire.PipelineOp{
			ID:        op.id,
			Method:    op.method,
			Params:    op.params,
			DependsOn: prev,
		}
		prev = op.id
	}

	call := wire.Call{
		ID:       e.nextID("req"),
		Method:   wire.PipelineMethod,
		Params:   []any{},
		TraceID:  span.TraceID,
		SpanID:   span.SpanID,
		Pipeline: pops,
	}

	value, err := e.sendSingle(ctx, span, call, start)
	if err != nil {
		return nil, err
	}

	for _, op := range local {
		value, err = lookupField(value, op.method)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

// lookupField reads one field from a structured result.
func lookupField(v any, field string) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, newFieldNotFoundError(field,
			fmt.Sprintf("cannot be read from a %T result", v))
	}
	fv, ok := m[field]
	if !ok {
		return nil, newFieldNotFoundError(field, "not present in result")
	}
	return fv, nil
}
