package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// PlainText reduces a free-text cell to plain text. Spreadsheets exported
// from web pages often carry tags or entities in name columns; those are
// decoded and stripped, and runs of whitespace collapse to one space.
func PlainText(s string) string {
	if strings.ContainsAny(s, "<&") {
		s = html2text.HTML2Text(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
