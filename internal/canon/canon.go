// Package canon renders call arguments as a deterministic string, used both
// for deduplication cache keys and for debug logging.
package canon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Inline-path limits. Larger values fall back to full JSON serialization.
const (
	maxInlineSlice = 10
	maxInlineMap   = 5
)

// String serializes a parameter list deterministically: structurally equal
// inputs always produce equal output. Map keys are sorted, so key order never
// affects the result.
func String(params []any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		writeValue(&b, p)
	}
	b.WriteByte(']')
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(x))
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case []any:
		if len(x) <= maxInlineSlice && allPrimitive(x) {
			writeInlineSlice(b, x)
			return
		}
		writeFallback(b, v)
	case map[string]any:
		if len(x) <= maxInlineMap && allPrimitiveValues(x) {
			writeInlineMap(b, x)
			return
		}
		writeFallback(b, v)
	default:
		writeFallback(b, v)
	}
}

func writeInlineSlice(b *strings.Builder, s []any) {
	b.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		writeValue(b, v)
	}
	b.WriteByte(']')
}

func writeInlineMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		writeValue(b, m[k])
	}
	b.WriteByte('}')
}

// writeFallback hands the value to encoding/json, whose map encoding is
// already key-sorted and therefore deterministic. Unserializable values
// degrade to their Go-syntax representation rather than failing the call.
func writeFallback(b *strings.Builder, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(b, "%#v", v)
		return
	}
	b.Write(data)
}

func allPrimitive(s []any) bool {
	for _, v := range s {
		if !isPrimitive(v) {
			return false
		}
	}
	return true
}

func allPrimitiveValues(m map[string]any) bool {
	for _, v := range m {
		if !isPrimitive(v) {
			return false
		}
	}
	return true
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
