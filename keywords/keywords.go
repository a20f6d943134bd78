// Package keywords derives a small ranked keyword set from free text.
package keywords

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	minWordLength = 3
	maxWordLength = 50
	maxKeywords   = 5
	titleWeight   = 2.0
	bodyWeight    = 1.0
)

// Extractor ranks words by weighted frequency after removing stop words.
// It is safe for concurrent use.
type Extractor struct {
	stop map[string]struct{}
}

// New creates an extractor using the built-in English and French stop words plus any extras.
func New(extraStopWords ...string) *Extractor {
	return &Extractor{stop: buildStopSet(extraStopWords)}
}

var defaultExtractor = New()

// Extract runs the default extractor.
func Extract(title, body string) []string {
	return defaultExtractor.Extract(title, body)
}

// Lower case-folds s the way phrases, keywords and candidate text are all
// compared. A Caser is stateful, so each call builds its own.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Normalize lower-cases s, replaces every rune that is not a letter, digit,
// hyphen or whitespace with a space, and collapses whitespace runs.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	lower := Lower(s)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, lower)
	return strings.Join(strings.Fields(cleaned), " ")
}

type scored struct {
	word   string
	weight float64
	first  int
}

// Extract returns at most five keywords ordered by descending weight.
// Title words count double. Ties keep first-seen order, title before body.
func (e *Extractor) Extract(title, body string) []string {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return nil
	}

	table := make(map[string]*scored)
	var order []*scored

	accumulate := func(text string, weight float64) {
		for _, tok := range strings.Fields(Normalize(text)) {
			tok = strings.Trim(tok, "-")
			if !e.valid(tok) {
				continue
			}
			if s, ok := table[tok]; ok {
				s.weight += weight
				continue
			}
			s := &scored{word: tok, weight: weight, first: len(order)}
			table[tok] = s
			order = append(order, s)
		}
	}

	accumulate(title, titleWeight)
	accumulate(PlainText(body), bodyWeight)

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].weight > order[j].weight
	})

	n := min(len(order), maxKeywords)
	out := make([]string, 0, n)
	for _, s := range order[:n] {
		out = append(out, s.word)
	}
	return out
}

func (e *Extractor) valid(tok string) bool {
	n := utf8.RuneCountInString(tok)
	if n < minWordLength || n > maxWordLength {
		return false
	}
	_, stop := e.stop[tok]
	return !stop
}
