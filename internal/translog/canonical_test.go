package translog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Payload
		expected string
	}{
		{"nil", nil, "{}"},
		{"empty", Payload{}, "{}"},
		{"string", Payload{"msg": "hi"}, `{"msg":"hi"}`},
		{"int", Payload{"n": int64(42)}, `{"n":42}`},
		{"integral float", Payload{"n": float64(7)}, `{"n":7}`},
		{"fraction", Payload{"n": 1.5}, `{"n":1.5}`},
		{"null", Payload{"template_text": nil}, `{"template_text":null}`},
		{"bool", Payload{"ok": true}, `{"ok":true}`},
		{"array", Payload{"a": []any{"x", int64(1)}}, `{"a":["x",1]}`},
		{"no html escape", Payload{"command": "show x | i <a>&"}, `{"command":"show x | i <a>&"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	p := Payload{
		"key":     "k",
		"driver":  "d",
		"command": "show x",
		"nested":  map[string]any{"z": int64(1), "a": int64(2)},
	}

	got, err := MarshalCanonical(p)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"show x","driver":"d","key":"k","nested":{"a":2,"z":1}}`, string(got))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) and sorts before U+E000.
	p := Payload{
		"\uE000":     int64(1),
		"\U00010000": int64(2),
	}

	got, err := MarshalCanonical(p)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(got))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	got, err := MarshalCanonical(Payload{"msg": "e\u0301"})
	require.NoError(t, err)
	assert.Equal(t, "{\"msg\":\"\u00e9\"}", string(got))
}

func TestMarshalCanonicalRejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(Payload{"ch": make(chan int)})
	require.Error(t, err)
}

func TestUnmarshalPayloadKeepsIntegers(t *testing.T) {
	p, err := UnmarshalPayload([]byte(`{"n": 9007199254740993, "f": 1.25, "s": "x", "nested": {"m": 3}}`))
	require.NoError(t, err)

	assert.Equal(t, int64(9007199254740993), p["n"])
	assert.Equal(t, 1.25, p["f"])
	assert.Equal(t, "x", p["s"])
	assert.Equal(t, int64(3), p["nested"].(map[string]any)["m"])
}

func TestUnmarshalPayloadEmpty(t *testing.T) {
	p, err := UnmarshalPayload(nil)
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = UnmarshalPayload([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestUnmarshalPayloadRejectsNonObject(t *testing.T) {
	_, err := UnmarshalPayload([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestCanonicalRoundTripIsStable(t *testing.T) {
	in := []byte(`{"b":1,"a":{"y":"x","x":[true,null]}}`)
	p, err := UnmarshalPayload(in)
	require.NoError(t, err)

	first, err := MarshalCanonical(p)
	require.NoError(t, err)
	p2, err := UnmarshalPayload(first)
	require.NoError(t, err)
	second, err := MarshalCanonical(p2)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, `{"a":{"x":[true,null],"y":"x"},"b":1}`, string(first))
}
