package model

import (
	"math"
	"sort"
)

const (
	MaxMessageWords = 20
	MaxGlobalWords  = 50
)

// WordInfluence is a word's signed contribution: positive favors spam.
type WordInfluence struct {
	Word      string  `json:"word"`
	Influence float64 `json:"influence"`
}

// WordWeight is a word's magnitude in the global rankings.
type WordWeight struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// WordStats lists the words most indicative of each class.
type WordStats struct {
	SpamWords []WordWeight `json:"spam_words"`
	HamWords  []WordWeight `json:"ham_words"`
}

// WordInfluence ranks the vocabulary words of message by absolute influence.
// Equal magnitudes keep their order of first appearance.
func (m *Model) WordInfluence(message string) []WordInfluence {
	terms := m.vectorizer.KnownTerms(message)
	out := make([]WordInfluence, 0, len(terms))
	for _, term := range terms {
		out = append(out, WordInfluence{
			Word:      term,
			Influence: m.influence[m.vectorizer.Vocabulary[term]],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Influence) > math.Abs(out[j].Influence)
	})
	if len(out) > MaxMessageWords {
		out = out[:MaxMessageWords]
	}
	return out
}

// GlobalWordStats returns the MaxGlobalWords highest and lowest influence words of
// the whole vocabulary. Ties are broken by word.
func (m *Model) GlobalWordStats() WordStats {
	// Terms are sorted, so index order is lexicographic order.
	idx := make([]int, len(m.influence))
	for i := range idx {
		idx[i] = i
	}

	sort.Slice(idx, func(a, b int) bool {
		ia, ib := m.influence[idx[a]], m.influence[idx[b]]
		if ia != ib {
			return ia > ib
		}
		return idx[a] < idx[b]
	})
	spam := m.weights(idx, false)

	sort.Slice(idx, func(a, b int) bool {
		ia, ib := m.influence[idx[a]], m.influence[idx[b]]
		if ia != ib {
			return ia < ib
		}
		return idx[a] < idx[b]
	})
	ham := m.weights(idx, true)

	return WordStats{SpamWords: spam, HamWords: ham}
}

func (m *Model) weights(idx []int, abs bool) []WordWeight {
	n := len(idx)
	if n > MaxGlobalWords {
		n = MaxGlobalWords
	}
	out := make([]WordWeight, n)
	for i := 0; i < n; i++ {
		w := m.influence[idx[i]]
		if abs {
			w = math.Abs(w)
		}
		out[i] = WordWeight{Word: m.vectorizer.Terms[idx[i]], Weight: w}
	}
	return out
}
