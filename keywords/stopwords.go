package keywords

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
	"to", "was", "were", "will", "with", "about", "above", "after",
	"again", "all", "am", "any", "been", "before", "being", "below",
	"between", "both", "but", "can", "did", "do", "does", "doing",
	"down", "during", "each", "few", "further", "had", "have", "having",
	"her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "into", "me", "most", "my", "myself", "no", "nor", "neither",
	"not", "now", "or", "other", "our", "ours", "ourselves", "out", "own",
	"same", "she", "should", "so", "some", "such", "than", "their", "theirs",
	"them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "too", "under", "until", "up", "very", "we", "what", "when",
	"where", "which", "while", "who", "whom", "why", "would", "you", "your",
	"yours", "yourself", "yourselves", "new", "more",
}

var frenchStopWords = []string{
	"le", "la", "les", "un", "une", "des", "du", "de", "et", "est",
	"dans", "en", "sur", "pour", "par", "avec", "ce", "cette", "ces",
	"mais", "ou", "où", "donc", "or", "ni", "car", "au", "aux", "plus",
	"moins", "très", "autre", "autres", "bien", "même", "être", "avoir",
	"tous", "tout", "toute", "toutes", "quel", "quelle", "quels", "quelles",
	"qui", "que", "quoi", "dont", "comment", "pourquoi", "quand",
}

// StopWordFile is the YAML layout accepted by LoadStopWords.
type StopWordFile struct {
	StopWords []string `yaml:"stop_words"`
}

// LoadStopWords reads additional stop words from a YAML file.
func LoadStopWords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stop words %s: %w", path, err)
	}

	var f StopWordFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse stop words %s: %w", path, err)
	}

	return f.StopWords, nil
}

func buildStopSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(englishStopWords)+len(frenchStopWords)+len(extra))
	for _, group := range [][]string{englishStopWords, frenchStopWords, extra} {
		for _, w := range group {
			if w = Normalize(w); w != "" {
				set[w] = struct{}{}
			}
		}
	}
	return set
}
