package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringDeterministicForMaps(t *testing.T) {
	a := String([]any{map[string]any{"x": 1, "y": 2, "z": 3}})
	b := String([]any{map[string]any{"z": 3, "y": 2, "x": 1}})
	assert.Equal(t, a, b, "key order must not affect the result")
	assert.Equal(t, `[{"x":1,"y":2,"z":3}]`, a)
}

func TestStringDistinguishesValues(t *testing.T) {
	tests := []struct {
		name string
		a, b []any
	}{
		{"different ints", []any{1}, []any{2}},
		{"int vs string", []any{1}, []any{"1"}},
		{"string vs quoted", []any{"a"}, []any{`"a"`}},
		{"nil vs empty string", []any{nil}, []any{""}},
		{"bool vs string", []any{true}, []any{"true"}},
		{"extra param", []any{1}, []any{1, 1}},
		{"map value", []any{map[string]any{"id": 1}}, []any{map[string]any{"id": 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, String(tt.a), String(tt.b))
		})
	}
}

func TestStringScalars(t *testing.T) {
	assert.Equal(t, "[]", String([]any{}))
	assert.Equal(t, "[null]", String([]any{nil}))
	assert.Equal(t, `["a",true,7,1.5]`, String([]any{"a", true, 7, 1.5}))
	assert.Equal(t, "[42]", String([]any{uint16(42)}))
}

func TestStringNestedStructures(t *testing.T) {
	v := []any{
		map[string]any{
			"user": map[string]any{"id": 7, "tags": []any{"a", "b"}},
		},
	}
	assert.Equal(t, String(v), String(v))

	reordered := []any{
		map[string]any{
			"user": map[string]any{"tags": []any{"a", "b"}, "id": 7},
		},
	}
	assert.Equal(t, String(v), String(reordered),
		"the fallback path must also be key-order independent")
}

func TestStringLargeSliceFallsBack(t *testing.T) {
	big := make([]any, 20)
	for i := range big {
		big[i] = i
	}
	assert.Equal(t, String([]any{big}), String([]any{big}))
}

func TestStringStructFallback(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	}
	a := String([]any{payload{Name: "x", ID: 1}})
	b := String([]any{payload{Name: "x", ID: 1}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, String([]any{payload{Name: "x", ID: 2}}))
}

func TestStringUnserializableDegrades(t *testing.T) {
	assert.NotPanics(t, func() {
		out := String([]any{func() {}})
		assert.NotEmpty(t, out)
	})
}
