package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips all HTML tags. The result is HTML-escaped and safe to embed
// in markup.
func Text(input string) string {
	return StrictPolicy.Sanitize(input)
}

// PlainText strips all HTML tags and decodes entities, for values that are
// returned as JSON rather than rendered. "R&D" stays "R&D".
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(Text(input)))
}

// Labels cleans a list of short free-text labels such as skills. Tags are
// stripped, whitespace trimmed and empty entries dropped. Order is kept.
func Labels(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if label := PlainText(input); label != "" {
			out = append(out, label)
		}
	}
	return out
}
