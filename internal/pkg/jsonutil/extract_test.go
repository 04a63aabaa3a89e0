package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractObject(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare", `{"score":0.4}`, `{"score":0.4}`, true},
		{"prose", `Sure! {"score":-0.2,"reason":"a } in text"} hope that helps`, `{"score":-0.2,"reason":"a } in text"}`, true},
		{"fenced", "```json\n{\"decision\":\"long\",\"nested\":{\"a\":1}}\n```", `{"decision":"long","nested":{"a":1}}`, true},
		{"escaped quote", `{"reason":"he said \"up\""}`, `{"reason":"he said \"up\""}`, true},
		{"unbalanced", `{"score":1`, "", false},
		{"empty", "  ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractObject(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", Pretty(map[string]int{"a": 1}))
	assert.Equal(t, "{}", Pretty(func() {}))
}
