package mapper

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy strips all markup; mapped values are plain text.
var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText reduces a value to a single line of plain text: tags
// stripped, entities decoded, control characters and runs of
// whitespace collapsed to single spaces.
func sanitizeText(s string) string {
	if s == "" {
		return ""
	}
	stripped := html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.Join(strings.Fields(stripped), " ")
}

// sanitizeFields sanitizes every value of a field map in place.
func sanitizeFields(fields map[string]string) {
	for k, v := range fields {
		fields[k] = sanitizeText(v)
	}
}

// sanitizeTerms sanitizes every term of a terms map in place, dropping
// terms that sanitize to nothing.
func sanitizeTerms(terms map[string][]string) {
	for tax, values := range terms {
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			if s := sanitizeText(v); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		terms[tax] = cleaned
	}
}
