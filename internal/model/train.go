package model

import (
	"fmt"

	"github.com/spam-detection/backend/internal/bayes"
	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/vectorizer"
)

// ParseLabel maps exactly "spam" or "ham" to a Label.
func ParseLabel(s string) (Label, error) {
	switch s {
	case "spam":
		return Spam, nil
	case "ham":
		return Ham, nil
	}
	return Ham, fmt.Errorf("%w: unexpected label %q, only 'spam' and 'ham' are allowed", apperrors.ErrInvalidDataset, s)
}

// Document is the text a row is trained on.
func (e Example) Document() string {
	return e.Subject + " " + e.Message
}

// Train fits a TF-IDF vectorizer with the English stop list and a multinomial
// naive Bayes classifier on examples.
func Train(examples []Example) (*Model, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: dataset has no rows", apperrors.ErrInvalidDataset)
	}

	docs := make([]string, len(examples))
	labels := make([]int, len(examples))
	var counts [bayes.NumClasses]int
	for i, ex := range examples {
		label, err := ParseLabel(ex.Label)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		docs[i] = ex.Document()
		labels[i] = int(label)
		counts[label]++
	}
	if counts[bayes.Spam] == 0 || counts[bayes.Ham] == 0 {
		return nil, fmt.Errorf("%w: dataset needs both spam and ham rows (spam=%d, ham=%d)",
			apperrors.ErrInvalidDataset, counts[bayes.Spam], counts[bayes.Ham])
	}

	v := vectorizer.NewTFIDFVectorizer(vectorizer.EnglishStopWords())
	if err := v.Fit(docs); err != nil {
		return nil, err
	}

	vectors := make([]vectorizer.Vector, len(docs))
	for i, doc := range docs {
		vectors[i] = v.Transform(doc)
	}

	nb, err := bayes.Fit(vectors, labels, v.Size())
	if err != nil {
		return nil, err
	}
	return newModel(v, nb), nil
}
