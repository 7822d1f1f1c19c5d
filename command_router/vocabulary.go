package command_router

import (
	"encoding/json"
	"strings"
)

const UnknownToken = "[unk]"

// Vocabulary is the restricted word list handed to the transcriber: every
// distinct word of every phrase plus the unknown token.
type Vocabulary struct {
	words []string
	index map[string]bool
}

// BuildVocabulary flattens tables into their distinct words, in first-seen
// order.
func BuildVocabulary(tables ...Table) Vocabulary {
	v := Vocabulary{index: make(map[string]bool)}

	for _, t := range tables {
		for _, e := range t.entries {
			for _, w := range strings.Fields(e.Phrase) {
				if !v.index[w] {
					v.index[w] = true
					v.words = append(v.words, w)
				}
			}
		}
	}

	return v
}

func (v Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}

func (v Vocabulary) Contains(word string) bool {
	return v.index[word]
}

func (v Vocabulary) Empty() bool {
	return len(v.words) == 0
}

// String renders the hint as a JSON list: all words in one string, then the
// unknown token.
func (v Vocabulary) String() string {
	out, _ := json.Marshal([]string{strings.Join(v.words, " "), UnknownToken})
	return string(out)
}

// Filter normalises text and replaces every word outside the vocabulary with
// the unknown token. known reports whether any in-vocabulary word survived.
// An empty vocabulary lets everything through.
func (v Vocabulary) Filter(text string) (filtered string, known bool) {
	words := strings.Fields(Normalize(text))
	if v.Empty() {
		return strings.Join(words, " "), len(words) > 0
	}

	for i, w := range words {
		if v.index[w] {
			known = true
			continue
		}
		words[i] = UnknownToken
	}

	return strings.Join(words, " "), known
}
