package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText_RemovesAllHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "script tag",
			input:    `Hello <script>alert('xss')</script> World`,
			expected: `Hello  World`,
		},
		{
			name:     "inline event handler",
			input:    `<div onclick="alert('xss')">Click me</div>`,
			expected: `Click me`,
		},
		{
			name:     "iframe injection",
			input:    `Safe text <iframe src="evil.com"></iframe> more text`,
			expected: `Safe text  more text`,
		},
		{
			name:     "mixed HTML tags",
			input:    `<b>Bold</b> <i>Italic</i> <a href="http://example.com">Link</a>`,
			expected: `Bold Italic Link`,
		},
		{
			name:     "plain text unchanged",
			input:    `Just plain text`,
			expected: `Just plain text`,
		},
		{
			name:     "empty string",
			input:    ``,
			expected: ``,
		},
		{
			name:     "image tag with onerror",
			input:    `<img src=x onerror="alert('xss')">`,
			expected: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Text(tt.input)
			if result != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPlainText_DecodesEntities(t *testing.T) {
	assert.Equal(t, "R&D", PlainText("R&D"))
	assert.Equal(t, "C++", PlainText("  C++ "))
	assert.Equal(t, "Go", PlainText("<b>Go</b>"))
	assert.Equal(t, "", PlainText("<script>alert(1)</script>"))
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: []string{}},
		{name: "keeps order", input: []string{"go", "sql", "rust"}, expected: []string{"go", "sql", "rust"}},
		{name: "drops blanks", input: []string{" ", "go", "", "<i></i>"}, expected: []string{"go"}},
		{name: "strips markup", input: []string{"<script>x()</script>ops", " k8s "}, expected: []string{"ops", "k8s"}},
		{name: "keeps duplicates", input: []string{"go", "go"}, expected: []string{"go", "go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Labels(tt.input))
		})
	}
}
