// Package match decides whether content satisfies a subscribed phrase.
//
// A phrase matches when every one of its words occurs as a substring of the
// candidate text. Word order and word boundaries are ignored, so "deep learning"
// matches both "learning deep" and "deeplearning".
package match

import (
	"strings"

	"keyword-notifier/keywords"
	"keyword-notifier/pkg/notifier"
)

// Field identifies which part of a content item satisfied a phrase.
type Field string

const (
	FieldNone     Field = ""
	FieldKeywords Field = "keywords"
	FieldTitle    Field = "title"
	FieldBody     Field = "body"
)

// Text reports whether every word of phrase is a substring of text.
// text must already be lower-cased; phrase is split on whitespace.
func Text(text, phrase string) bool {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// Target is a content item folded once for matching against many phrases.
type Target struct {
	keywords []string
	title    string
	body     string
	text     string // markup-stripped body, empty unless the body is HTML
}

// Prepare lower-cases the searchable fields of c. A nil c yields a target that
// matches nothing.
func Prepare(c *notifier.Content) *Target {
	if c == nil {
		return &Target{}
	}
	t := &Target{
		keywords: make([]string, len(c.Keywords)),
		title:    keywords.Lower(c.Title),
		body:     keywords.Lower(c.Body),
	}
	for i, kw := range c.Keywords {
		t.keywords[i] = keywords.Lower(kw)
	}
	if keywords.IsHTML(c.Body) {
		t.text = keywords.Lower(keywords.PlainText(c.Body))
	}
	return t
}

// Match evaluates phrase against the keywords, then the title, then the body,
// and returns the first field that matched. The body matches on its raw text
// or, for HTML, on its rendered text.
func (t *Target) Match(phrase string) (Field, bool) {
	phrase = keywords.Lower(phrase)

	if t.keywordMatch(phrase) {
		return FieldKeywords, true
	}
	if Text(t.title, phrase) {
		return FieldTitle, true
	}
	if Text(t.body, phrase) || (t.text != "" && Text(t.text, phrase)) {
		return FieldBody, true
	}
	return FieldNone, false
}

func (t *Target) keywordMatch(phrase string) bool {
	for _, kw := range t.keywords {
		if Text(kw, phrase) {
			return true
		}
	}
	return false
}

// Content evaluates phrase against c. See Target.Match.
func Content(c *notifier.Content, phrase string) (Field, bool) {
	return Prepare(c).Match(phrase)
}

// Keywords reports whether phrase matches any of the content keywords.
func Keywords(c *notifier.Content, phrase string) bool {
	if c == nil {
		return false
	}
	t := &Target{keywords: make([]string, len(c.Keywords))}
	for i, kw := range c.Keywords {
		t.keywords[i] = keywords.Lower(kw)
	}
	return t.keywordMatch(keywords.Lower(phrase))
}

// Phrases returns the subset of phrases that content satisfies, in input order.
func Phrases(c *notifier.Content, phrases []string) []string {
	t := Prepare(c)
	var matched []string
	for _, p := range phrases {
		if _, ok := t.Match(p); ok {
			matched = append(matched, p)
		}
	}
	return matched
}
