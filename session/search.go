package session

import (
	"keyword-notifier/match"
	"keyword-notifier/pkg/notifier"
)

// Search returns, for each phrase, the content whose keyword set satisfies it.
// Phrases without a match are omitted.
func Search(contents []*notifier.Content, phrases []string) map[string][]*notifier.Content {
	out := make(map[string][]*notifier.Content)
	for _, phrase := range phrases {
		for _, c := range contents {
			if match.Keywords(c, phrase) {
				out[phrase] = append(out[phrase], c.Clone())
			}
		}
	}
	return out
}
