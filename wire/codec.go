package wire

import (
	"encoding/json"
	"fmt"
)

// EncodeCall serializes a single or pipeline call.
func EncodeCall(c *Call) ([]byte, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("call missing id")
	}
	if c.Method == "" {
		return nil, fmt.Errorf("call missing method")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}
	return data, nil
}

// EncodeBatch serializes a batch envelope. A batch of fewer than two calls is
// rejected; callers send those as plain single calls.
func EncodeBatch(b *Batch) ([]byte, error) {
	if len(b.Calls) < 2 {
		return nil, fmt.Errorf("batch requires at least two calls, got %d", len(b.Calls))
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return data, nil
}

// DecodeResponse parses and validates a response envelope. Anything that is
// not valid JSON or does not carry a recognized type discriminator is an
// error; the caller treats that as a protocol-class failure.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	switch resp.Type {
	case TypeSingle:
		return &resp, nil
	case TypeBatch:
		if resp.Responses == nil {
			return nil, fmt.Errorf("batch response missing responses array")
		}
		for i := range resp.Responses {
			if resp.Responses[i].Type != TypeSingle {
				return nil, fmt.Errorf("batch response %d has type %q (must be %q)",
					i, resp.Responses[i].Type, TypeSingle)
			}
		}
		return &resp, nil
	case "":
		return nil, fmt.Errorf("response missing required field: type")
	default:
		return nil, fmt.Errorf("invalid response type: %q", resp.Type)
	}
}
