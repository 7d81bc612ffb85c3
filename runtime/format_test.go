package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	exec := testExecution(t, nil, map[string]Value{
		"user":  RecordOf(Record{"name": String("Ann"), "age": Number(31)}),
		"total": Number(12.5),
		"rows":  CollectionOf(String("a"), String("b")),
	})

	tests := []struct {
		template string
		expected string
	}{
		{"plain text", "plain text"},
		{"Hello {{user.name}}", "Hello Ann"},
		{"{{ user.name }} is {{user.age}}", "Ann is 31"},
		{"Total: {{total}}", "Total: 12.5"},
		{"First: {{rows.0}}", "First: a"},
		{"Missing: [{{nope.deeper}}]", "Missing: []"},
		{"Unclosed {{ user.name", "Unclosed {{ user.name"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.expected, exec.FormatMessage(tt.template))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a.b", "c"}, Placeholders("{{a.b}} and {{ c }}"))
	assert.Empty(t, Placeholders("nothing here"))
}
