// Package citations turns operator-pasted citation text into an ordered
// list of lookup queries.
package citations

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// ugcPolicy strips everything except user-generated-content markup, so
// list structure survives sanitizing but scripts and attributes do not.
var ugcPolicy = bluemonday.UGCPolicy()

// queryCleaner removes the control characters that rich-text editors
// leave inside list items.
var queryCleaner = strings.NewReplacer("\n", "", "\r", "", "\t", "", " ", " ")

// ParseList splits pasted citation text into individual queries.
// Input carrying list markup is parsed tolerantly (unbalanced tags are
// repaired by the HTML parser) and each list item becomes one query;
// plain text is split on newlines. Empty entries are dropped and order
// is preserved.
func ParseList(input string) []string {
	cleaned := strings.TrimSpace(ugcPolicy.Sanitize(input))
	if cleaned == "" {
		return nil
	}

	var rows []string
	if hasListMarkup(cleaned) {
		rows = listItems(cleaned)
	} else {
		// The sanitizer entity-escapes plain text; undo that before
		// the queries reach the registry.
		rows = strings.Split(html.UnescapeString(cleaned), "\n")
	}

	queries := make([]string, 0, len(rows))
	for _, row := range rows {
		q := strings.TrimSpace(queryCleaner.Replace(row))
		if q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return nil
	}
	return queries
}

// hasListMarkup reports whether the text contains HTML list tags.
func hasListMarkup(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<li") ||
		strings.Contains(lower, "<ol") ||
		strings.Contains(lower, "<ul")
}

// listItems extracts the text of every li element, in document order.
// The underlying x/net/html parser never fails on malformed markup, so
// a parse error only occurs on reader failure and yields no items.
func listItems(markup string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var items []string
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		items = append(items, sel.Text())
	})
	return items
}
