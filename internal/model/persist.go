package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spam-detection/backend/internal/bayes"
	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/storage"
	"github.com/spam-detection/backend/internal/vectorizer"
)

const formatVersion = 1

type modelFile struct {
	Version        int                         `json:"version"`
	Terms          []string                    `json:"terms"`
	DocFreq        []int                       `json:"doc_freq"`
	NumDocs        int                         `json:"num_docs"`
	ClassLogPrior  [bayes.NumClasses]float64   `json:"class_log_prior"`
	FeatureLogProb [bayes.NumClasses][]float64 `json:"feature_log_prob"`
}

// Save writes the model to path, replacing any previous file atomically.
func (m *Model) Save(path string) error {
	data, err := json.Marshal(modelFile{
		Version:        formatVersion,
		Terms:          m.vectorizer.Terms,
		DocFreq:        m.vectorizer.DocFreq,
		NumDocs:        m.vectorizer.NumDocs,
		ClassLogPrior:  m.classifier.ClassLogPrior,
		FeatureLogProb: m.classifier.FeatureLogProb,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	return storage.WriteFileAtomic(path, data, 0644)
}

// Load reads a model written by Save. Missing or corrupt files wrap ErrModelUnavailable.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrModelUnavailable, err)
	}

	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: corrupt model file %s: %v", apperrors.ErrModelUnavailable, path, err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported model version %d", apperrors.ErrModelUnavailable, f.Version)
	}

	v, err := vectorizer.Restore(f.Terms, f.DocFreq, f.NumDocs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrModelUnavailable, err)
	}
	nb, err := bayes.Restore(f.ClassLogPrior, f.FeatureLogProb)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrModelUnavailable, err)
	}
	if nb.NumFeatures() != v.Size() {
		return nil, fmt.Errorf("%w: vocabulary has %d terms but classifier has %d features",
			apperrors.ErrModelUnavailable, v.Size(), nb.NumFeatures())
	}
	return newModel(v, nb), nil
}
