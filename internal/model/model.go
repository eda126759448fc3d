package model

import (
	"github.com/spam-detection/backend/internal/bayes"
	"github.com/spam-detection/backend/internal/vectorizer"
)

// Label is the class of a message.
type Label int

const (
	Ham  Label = bayes.Ham
	Spam Label = bayes.Spam
)

func (l Label) String() string {
	if l == Spam {
		return "spam"
	}
	return "ham"
}

// Example is one labeled training row.
type Example struct {
	Subject string
	Message string
	Label   string
}

// Prediction is the classification of a single message.
type Prediction struct {
	Label Label
	// Confidence is the probability of Label, full precision.
	Confidence    float64
	Probabilities [bayes.NumClasses]float64
	LogLikelihood [bayes.NumClasses]float64
}

// Model bundles a fitted vectorizer and classifier. It is never mutated after
// construction and is safe for concurrent use.
type Model struct {
	vectorizer *vectorizer.TFIDFVectorizer
	classifier *bayes.MultinomialNB
	// influence[i] = log p(i|spam) - log p(i|ham)
	influence []float64
}

func newModel(v *vectorizer.TFIDFVectorizer, nb *bayes.MultinomialNB) *Model {
	influence := make([]float64, v.Size())
	for i := range influence {
		influence[i] = nb.FeatureLogProb[bayes.Spam][i] - nb.FeatureLogProb[bayes.Ham][i]
	}
	return &Model{vectorizer: v, classifier: nb, influence: influence}
}

// Predict classifies message.
func (m *Model) Predict(message string) Prediction {
	vec := m.vectorizer.Transform(message)
	label, jll := m.classifier.Predict(vec)
	proba := bayes.Probabilities(jll)
	return Prediction{
		Label:         Label(label),
		Confidence:    proba[label],
		Probabilities: proba,
		LogLikelihood: jll,
	}
}

// VocabularySize is the number of features.
func (m *Model) VocabularySize() int {
	return m.vectorizer.Size()
}

// NumDocuments is the number of training documents.
func (m *Model) NumDocuments() int {
	return m.vectorizer.NumDocs
}

// ClassLogPrior returns the log prior of each class.
func (m *Model) ClassLogPrior() [bayes.NumClasses]float64 {
	return m.classifier.ClassLogPrior
}
