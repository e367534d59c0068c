// Package lumen is the client-side dispatch engine for invoking serverless
// function workers over an HTTP-like transport.
//
// The engine turns many independent, possibly-identical, possibly-dependent
// method calls into the minimum number of wire requests:
//
//   - identical concurrent calls are deduplicated onto one shared request
//   - distinct concurrent calls are coalesced into one batch request
//   - dependent calls are chained into one pipeline request
//
// Every logical call gets its own span and metrics, reported through
// pluggable tracing hooks and aggregated into percentile snapshots.
//
// A minimal round trip:
//
//	t, err := httptransport.New("https://fn.example.com/invoke")
//	if err != nil { ... }
//	eng, err := lumen.New(t, lumen.Config{})
//	if err != nil { ... }
//	defer eng.Close()
//
//	result, err := eng.Invoke(ctx, "getUser", map[string]any{"id": 7})
//
// Dependent calls ride one request:
//
//	profile, err := eng.Pipeline().
//		Call("getUser", 7).
//		Call("loadProfile").
//		Get("displayName").
//		Resolve(ctx)
//
// The transport is pluggable: anything implementing Transport can carry the
// serialized payloads. httptransport provides the default HTTP POST
// implementation; promhook exports span outcomes to Prometheus.
package lumen
