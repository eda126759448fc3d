package vectorizer

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/spam-detection/backend/internal/errors"
)

// Vector is a sparse feature vector keyed by vocabulary index.
type Vector map[int]float64

// Indices returns the feature indices of v in ascending order. Summing in this
// order keeps floating point results reproducible.
func (v Vector) Indices() []int {
	idx := make([]int, 0, len(v))
	for i := range v {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Norm returns the Euclidean norm of the vector.
func (v Vector) Norm() float64 {
	var sum float64
	for _, i := range v.Indices() {
		sum += v[i] * v[i]
	}
	return math.Sqrt(sum)
}

// TFIDFVectorizer implements Term Frequency - Inverse Document Frequency over a
// vocabulary frozen by Fit.
type TFIDFVectorizer struct {
	Vocabulary map[string]int
	Terms      []string
	DocFreq    []int
	NumDocs    int
	IDF        []float64

	stopWords map[string]struct{}
}

func NewTFIDFVectorizer(stopWords []string) *TFIDFVectorizer {
	stops := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stops[w] = struct{}{}
	}
	return &TFIDFVectorizer{
		Vocabulary: make(map[string]int),
		stopWords:  stops,
	}
}

// Restore rebuilds a fitted vectorizer from persisted document-frequency stats.
// terms must be in index order.
func Restore(terms []string, docFreq []int, numDocs int) (*TFIDFVectorizer, error) {
	if len(terms) != len(docFreq) {
		return nil, fmt.Errorf("vocabulary has %d terms but %d document frequencies", len(terms), len(docFreq))
	}
	if numDocs <= 0 {
		return nil, fmt.Errorf("document count must be positive, got %d", numDocs)
	}
	v := NewTFIDFVectorizer(nil)
	v.Terms = append([]string(nil), terms...)
	v.DocFreq = append([]int(nil), docFreq...)
	v.NumDocs = numDocs
	for i, term := range v.Terms {
		if _, dup := v.Vocabulary[term]; dup {
			return nil, fmt.Errorf("duplicate vocabulary term %q", term)
		}
		if docFreq[i] <= 0 || docFreq[i] > numDocs {
			return nil, fmt.Errorf("document frequency %d of %q out of range", docFreq[i], term)
		}
		v.Vocabulary[term] = i
	}
	v.computeIDF()
	return v, nil
}

// Fit analyzes the corpus to build vocabulary and IDF stats
func (v *TFIDFVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: no documents to fit", apperrors.ErrInvalidDataset)
	}

	wordDocCounts := make(map[string]int)
	for _, doc := range docs {
		seenInDoc := make(map[string]bool)
		for _, token := range v.tokens(doc) {
			if !seenInDoc[token] {
				wordDocCounts[token]++
				seenInDoc[token] = true
			}
		}
	}
	if len(wordDocCounts) == 0 {
		return fmt.Errorf("%w: every document is empty after tokenization", apperrors.ErrInvalidDataset)
	}

	terms := make([]string, 0, len(wordDocCounts))
	for term := range wordDocCounts {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	v.Vocabulary = make(map[string]int, len(terms))
	v.Terms = terms
	v.DocFreq = make([]int, len(terms))
	v.NumDocs = len(docs)
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.DocFreq[i] = wordDocCounts[term]
	}
	v.computeIDF()
	return nil
}

// idf = ln((1+N) / (1+df)) + 1
func (v *TFIDFVectorizer) computeIDF() {
	n := float64(v.NumDocs)
	v.IDF = make([]float64, len(v.DocFreq))
	for i, df := range v.DocFreq {
		v.IDF[i] = math.Log((1+n)/(1+float64(df))) + 1
	}
}

// Transform converts text to an L2-normalized vector over the learned vocabulary.
// Tokens outside the vocabulary are ignored.
func (v *TFIDFVectorizer) Transform(text string) Vector {
	vector := make(Vector)
	for _, token := range Tokenize(text) {
		if idx, exists := v.Vocabulary[token]; exists {
			vector[idx]++
		}
	}

	for idx, count := range vector {
		vector[idx] = count * v.IDF[idx]
	}

	norm := vector.Norm()
	if norm == 0 {
		return vector
	}
	for idx := range vector {
		vector[idx] /= norm
	}
	return vector
}

// KnownTerms returns the distinct vocabulary tokens of text in first-occurrence order.
func (v *TFIDFVectorizer) KnownTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, token := range Tokenize(text) {
		if _, ok := v.Vocabulary[token]; !ok || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

// Size is the number of features.
func (v *TFIDFVectorizer) Size() int {
	return len(v.Terms)
}

func (v *TFIDFVectorizer) tokens(doc string) []string {
	tokens := Tokenize(doc)
	out := tokens[:0]
	for _, t := range tokens {
		if _, stop := v.stopWords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}
