package keywords

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// A closing or self-closing tag. An opening tag alone, as in "embed <script> in
// a page" or "x<y and y>z", does not make a body HTML.
var markupRegex = regexp.MustCompile(`</[a-zA-Z][a-zA-Z0-9-]*\s*>|<[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/>`)

// IsHTML reports whether s carries markup worth stripping.
func IsHTML(s string) bool {
	return strings.Contains(s, "<") && markupRegex.MatchString(s)
}

// PlainText strips markup from s when it looks like HTML. Plain strings are returned unchanged.
func PlainText(s string) string {
	if !IsHTML(s) {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	doc.Find("script, style, noscript").Remove()

	// Block boundaries would otherwise glue adjacent words together.
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}
