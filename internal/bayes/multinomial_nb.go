package bayes

import (
	"fmt"
	"math"

	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/vectorizer"
)

// Class indices. Ham wins ties.
const (
	Ham = iota
	Spam
	NumClasses
)

// MultinomialNB holds the data necessary for classification.
type MultinomialNB struct {
	// Log(Prior probability) for each class
	ClassLogPrior [NumClasses]float64
	// FeatureLogProb[c][f] = Log(p(f|c)), Laplace smoothed.
	FeatureLogProb [NumClasses][]float64
}

// Fit computes priors and smoothed feature log-probabilities from weighted feature vectors.
func Fit(vectors []vectorizer.Vector, labels []int, numFeatures int) (*MultinomialNB, error) {
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("%w: %d vectors but %d labels", apperrors.ErrInvalidDataset, len(vectors), len(labels))
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no training instances", apperrors.ErrInvalidDataset)
	}
	if numFeatures <= 0 {
		return nil, fmt.Errorf("%w: feature count must be positive", apperrors.ErrInvalidDataset)
	}

	var classCount [NumClasses]int
	var featureMass [NumClasses][]float64
	for c := range featureMass {
		featureMass[c] = make([]float64, numFeatures)
	}

	for i, vec := range vectors {
		class := labels[i]
		if class != Ham && class != Spam {
			return nil, fmt.Errorf("%w: label %d at row %d is not 0 or 1", apperrors.ErrInvalidDataset, class, i)
		}
		classCount[class]++
		for idx, w := range vec {
			if idx < 0 || idx >= numFeatures {
				return nil, fmt.Errorf("%w: feature index %d out of range", apperrors.ErrInvalidDataset, idx)
			}
			if w < 0 {
				return nil, fmt.Errorf("%w: negative feature weight %f", apperrors.ErrInvalidDataset, w)
			}
			featureMass[class][idx] += w
		}
	}

	nb := &MultinomialNB{}
	total := float64(len(vectors))
	for c := 0; c < NumClasses; c++ {
		nb.ClassLogPrior[c] = math.Log(float64(classCount[c]) / total)

		var mass float64
		for _, m := range featureMass[c] {
			mass += m
		}
		denom := mass + float64(numFeatures)
		nb.FeatureLogProb[c] = make([]float64, numFeatures)
		for f, m := range featureMass[c] {
			nb.FeatureLogProb[c][f] = math.Log((m + 1) / denom)
		}
	}
	return nb, nil
}

// Restore wraps persisted parameters.
func Restore(prior [NumClasses]float64, featureLogProb [NumClasses][]float64) (*MultinomialNB, error) {
	if len(featureLogProb[Ham]) == 0 || len(featureLogProb[Ham]) != len(featureLogProb[Spam]) {
		return nil, fmt.Errorf("feature log-probabilities have mismatched lengths %d and %d",
			len(featureLogProb[Ham]), len(featureLogProb[Spam]))
	}
	return &MultinomialNB{ClassLogPrior: prior, FeatureLogProb: featureLogProb}, nil
}

// NumFeatures is the dimension the model was trained on.
func (nb *MultinomialNB) NumFeatures() int {
	return len(nb.FeatureLogProb[Ham])
}

// JointLogLikelihood returns log_prior[c] + sum(v[i] * log p(i|c)) for each class.
func (nb *MultinomialNB) JointLogLikelihood(v vectorizer.Vector) [NumClasses]float64 {
	var jll [NumClasses]float64
	indices := v.Indices()
	for c := 0; c < NumClasses; c++ {
		score := nb.ClassLogPrior[c]
		for _, idx := range indices {
			if w := v[idx]; w != 0 {
				score += w * nb.FeatureLogProb[c][idx]
			}
		}
		jll[c] = score
	}
	return jll
}

// Predict returns the most likely class; equal scores resolve to Ham.
func (nb *MultinomialNB) Predict(v vectorizer.Vector) (int, [NumClasses]float64) {
	jll := nb.JointLogLikelihood(v)
	if jll[Spam] > jll[Ham] {
		return Spam, jll
	}
	return Ham, jll
}

// PredictProba normalizes joint log-likelihoods into class probabilities.
func (nb *MultinomialNB) PredictProba(v vectorizer.Vector) [NumClasses]float64 {
	return Probabilities(nb.JointLogLikelihood(v))
}

// Probabilities converts joint log-likelihoods with the log-sum-exp trick.
func Probabilities(jll [NumClasses]float64) [NumClasses]float64 {
	var p [NumClasses]float64
	lse := LogSumExp(jll[:]...)
	for c := range jll {
		p[c] = math.Exp(jll[c] - lse)
	}
	return p
}

// LogSumExp computes log(sum(exp(xs))) without overflow.
func LogSumExp(xs ...float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, 0) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}
