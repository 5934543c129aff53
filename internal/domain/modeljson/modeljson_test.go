package modeljson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{"plain", `{"a": 1}`, map[string]any{"a": float64(1)}},
		{"prose", `Sure! Here it is: {"a": "x"} hope it helps`, map[string]any{"a": "x"}},
		{"fence", "```json\n{\"a\": true}\n```", map[string]any{"a": true}},
		{"nested", `note {"a": {"b": [1, 2]}} end`, map[string]any{"a": map[string]any{"b": []any{float64(1), float64(2)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Object(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObject_Rejects(t *testing.T) {
	for _, in := range []string{"", "no json here", "[1, 2]", `{"a": `, "null"} {
		_, ok := Object(in)
		assert.False(t, ok, in)
	}
}

func TestParseExtraction(t *testing.T) {
	ex, ok := ParseExtraction(`{"relevant": true, "facts": ["Invoice #123", "Amount: $500"]}`)
	require.True(t, ok)
	assert.True(t, ex.Relevant)
	assert.Equal(t, []any{"Invoice #123", "Amount: $500"}, ex.Facts)
}

func TestParseExtraction_RegexFallback(t *testing.T) {
	ex, ok := ParseExtraction(`"relevant": TRUE, "facts": ["Due: Jan 15", "Total 40"`+"]\n and then the model rambles {")
	require.True(t, ok)
	assert.True(t, ex.Relevant)
	assert.Equal(t, []any{"Due: Jan 15", "Total 40"}, ex.Facts)
}

func TestParseExtraction_Malformed(t *testing.T) {
	_, ok := ParseExtraction("I think this passage is about cooking.")
	assert.False(t, ok)
}

func TestParseExtraction_StringBool(t *testing.T) {
	ex, ok := ParseExtraction(`{"relevant": "false", "facts": "oops"}`)
	require.True(t, ok)
	assert.False(t, ex.Relevant)
	assert.Nil(t, ex.Facts)
}
