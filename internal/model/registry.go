package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	apperrors "github.com/spam-detection/backend/internal/errors"
)

// Source produces the training examples for a retrain.
type Source func() ([]Example, error)

// Registry hands out the current model and serializes retraining.
type Registry struct {
	current atomic.Pointer[Model]
	trainMu sync.Mutex
}

func NewRegistry(m *Model) *Registry {
	r := &Registry{}
	if m != nil {
		r.current.Store(m)
	}
	return r
}

// Current returns the model in service.
func (r *Registry) Current() (*Model, error) {
	m := r.current.Load()
	if m == nil {
		return nil, fmt.Errorf("%w: no model loaded", apperrors.ErrModelUnavailable)
	}
	return m, nil
}

// Swap publishes m to subsequent Current calls.
func (r *Registry) Swap(m *Model) {
	r.current.Store(m)
}

// Retrain trains a new model, saves it to path when path is set and publishes it.
// Only one retrain runs at a time; a concurrent call fails with ErrTrainingInProgress.
// On failure the previous model stays in service.
func (r *Registry) Retrain(ctx context.Context, source Source, path string) (*Model, error) {
	if !r.trainMu.TryLock() {
		return nil, apperrors.ErrTrainingInProgress
	}
	defer r.trainMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	examples, err := source()
	if err != nil {
		return nil, err
	}
	m, err := Train(examples)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := m.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save model: %w", err)
		}
	}
	r.Swap(m)
	return m, nil
}
