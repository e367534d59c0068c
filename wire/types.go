package wire

// PipelineMethod is the reserved method name carried by a call whose work is
// described by its Pipeline operations rather than by Method/Params.
const PipelineMethod = "__pipeline__"

// BatchMethod is the synthetic method name used for the span that wraps a
// whole batched round trip.
const BatchMethod = "__batch__"

// Call is the unit sent to the transport, either on its own, inside a batch
// envelope, or carrying a pipeline of dependent operations.
type Call struct {
	ID           string       `json:"id"`
	Method       string       `json:"method"`
	Params       []any        `json:"params"`
	TraceID      string       `json:"traceId"`
	SpanID       string       `json:"spanId"`
	ParentSpanID string       `json:"parentSpanId,omitempty"`
	Pipeline     []PipelineOp `json:"pipeline,omitempty"`
}

// PipelineOp is one step of a pipeline call. DependsOn names the id of the
// step whose settled result this step consumes; the first step has none.
type PipelineOp struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	Params    []any  `json:"params"`
	DependsOn string `json:"dependsOn,omitempty"`
}

// Batch is the envelope for several calls sent as one request. The server
// contract is that responses come back in request order.
type Batch struct {
	Calls   []Call `json:"batch"`
	TraceID string `json:"traceId"`
}

// Metadata travels out-of-band with each request so the transport layer can
// correlate and route without parsing the payload.
type Metadata struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Batch        bool
}

// Response type discriminators.
const (
	TypeSingle = "single"
	TypeBatch  = "batch"
)

// Response is the discriminated response envelope. A single response carries
// either Result or Error/Code/FailedAt; a batch response carries one single
// response per request, positionally aligned.
type Response struct {
	Type      string     `json:"type"`
	ID        string     `json:"id,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	Code      string     `json:"code,omitempty"`
	FailedAt  string     `json:"failedAt,omitempty"`
	Responses []Response `json:"responses,omitempty"`
}

// IsError reports whether the response carries a remote error payload.
func (r *Response) IsError() bool {
	return r.Error != ""
}
