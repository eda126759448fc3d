package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/spam-detection/backend/internal/auth"
	"github.com/spam-detection/backend/internal/config"
	"github.com/spam-detection/backend/internal/dataset"
	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/model"
	"github.com/spam-detection/backend/internal/storage"
	"github.com/spam-detection/backend/internal/textclean"
	"github.com/spam-detection/backend/internal/vectorizer"
)

// Engine orchestrates accounts, scans and the classifier
type Engine struct {
	Config  *config.Config
	Logger  *logrus.Entry
	Storage storage.Storage
	Models  *model.Registry
	Tokens  *auth.TokenManager
	Hasher  *auth.PasswordHasher

	mu    sync.RWMutex
	Stats EngineStats

	now func() time.Time
}

type EngineStats struct {
	MessagesScanned int64
	SpamDetected    int64
	LastTrained     time.Time
	StartTime       time.Time
}

func NewEngine(cfg *config.Config, logger *logrus.Entry, store storage.Storage, models *model.Registry) *Engine {
	return &Engine{
		Config:  cfg,
		Logger:  logger.WithField("component", "engine"),
		Storage: store,
		Models:  models,
		Tokens:  auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer),
		Hasher: auth.NewPasswordHasher(auth.HashParams{
			MemoryKB:   uint32(max(cfg.Auth.HashMemoryKB, 0)),
			Iterations: uint32(max(cfg.Auth.HashIterations, 0)),
			Threads:    uint8(min(max(cfg.Auth.HashThreads, 0), 255)),
		}),
		Stats: EngineStats{StartTime: time.Now()},
		now:   time.Now,
	}
}

// InitModel trains from the dataset (TrainOnStart) or loads the saved model.
// Any error here is fatal for the service.
func (e *Engine) InitModel(ctx context.Context) error {
	if !e.Config.Model.TrainOnStart {
		m, err := model.Load(e.Config.Model.ModelPath)
		if err != nil {
			return err
		}
		e.Models.Swap(m)
		e.Logger.WithFields(logrus.Fields{
			"path":       e.Config.Model.ModelPath,
			"vocabulary": m.VocabularySize(),
		}).Info("Loaded model from disk")
		return nil
	}
	_, err := e.Retrain(ctx)
	return err
}

// Retrain rebuilds the model from the configured dataset, saves and publishes it.
func (e *Engine) Retrain(ctx context.Context) (*model.Model, error) {
	start := time.Now()
	m, err := e.Models.Retrain(ctx, e.loadDataset, e.Config.Model.ModelPath)
	if err != nil {
		e.Logger.WithError(err).Error("Training failed")
		return nil, err
	}

	e.mu.Lock()
	e.Stats.LastTrained = e.now()
	e.mu.Unlock()

	e.Logger.WithFields(logrus.Fields{
		"documents":  m.NumDocuments(),
		"vocabulary": m.VocabularySize(),
		"duration":   time.Since(start).String(),
		"path":       e.Config.Model.ModelPath,
	}).Info("Model trained")
	return m, nil
}

func (e *Engine) loadDataset() ([]model.Example, error) {
	var clean dataset.Cleaner
	if e.Config.Model.StripHTML {
		clean = textclean.Clean
	}
	return dataset.Load(e.Config.Model.DatasetPath, clean)
}

// Register creates an account and returns it with an access token.
func (e *Engine) Register(req auth.RegisterRequest) (*storage.User, string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := auth.ValidateRegister(req); err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	hash, err := e.Hasher.Hash(req.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing failed: %w", err)
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    e.now().UTC(),
		Settings:     storage.DefaultSettings(),
	}
	if err := e.Storage.CreateUser(user); err != nil {
		return nil, "", err
	}

	token, err := e.Tokens.Generate(user.ID)
	if err != nil {
		return nil, "", err
	}
	e.Logger.WithField("user_id", user.ID).Info("User registered")
	return user, token, nil
}

// Login checks credentials; unknown email and wrong password fail the same way.
func (e *Engine) Login(req auth.LoginRequest) (*storage.User, string, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	user, err := e.Storage.GetUserByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, "", apperrors.ErrInvalidCredentials
	}
	match, err := e.Hasher.Verify(req.Password, user.PasswordHash)
	if err != nil || !match {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	token, err := e.Tokens.Generate(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (e *Engine) GetUser(userID string) (*storage.User, error) {
	return e.Storage.GetUser(userID)
}

func (e *Engine) UpdateSettings(userID string, settings storage.Settings) (storage.Settings, error) {
	if err := auth.ValidateSettings(settings); err != nil {
		return storage.Settings{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := e.Storage.UpdateSettings(userID, settings); err != nil {
		return storage.Settings{}, err
	}
	return settings, nil
}

// Predict classifies a batch of messages for userID and records them in the
// user's history. The batch is classified in full before anything is stored,
// so a rejected or failed batch leaves the history untouched.
func (e *Engine) Predict(ctx context.Context, userID string, messages []string) ([]*storage.Scan, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages provided", apperrors.ErrInvalidInput)
	}
	m, err := e.Models.Current()
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(messages))
	for i, msg := range messages {
		texts[i] = e.clean(msg)
		if len(vectorizer.Tokenize(texts[i])) == 0 {
			return nil, fmt.Errorf("%w: message %d has no words to analyze", apperrors.ErrInvalidInput, i)
		}
	}

	scans := make([]*storage.Scan, 0, len(messages))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := m.Predict(text)
		scan := &storage.Scan{
			ID:         uuid.NewString(),
			Message:    messages[i],
			Prediction: p.Label.String(),
			Confidence: Percent(p.Confidence),
			Timestamp:  e.now().UTC(),
			Language:   detectLanguage(text),
			WordInfluence: lo.Map(m.WordInfluence(text), func(w model.WordInfluence, _ int) storage.WordWeight {
				return storage.WordWeight{Word: w.Word, Influence: w.Influence}
			}),
		}
		scans = append(scans, scan)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.Storage.AddScans(userID, scans, e.Config.Storage.HistoryLimit); err != nil {
		return nil, fmt.Errorf("failed to save scans: %w", err)
	}

	spam := lo.CountBy(scans, func(s *storage.Scan) bool { return s.Prediction == model.Spam.String() })
	e.mu.Lock()
	e.Stats.MessagesScanned += int64(len(scans))
	e.Stats.SpamDetected += int64(spam)
	e.mu.Unlock()

	e.Logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"messages": len(scans),
		"spam":     spam,
	}).Debug("Batch classified")
	return scans, nil
}

func (e *Engine) History(userID string) ([]*storage.Scan, error) {
	return e.Storage.ListScans(userID)
}

func (e *Engine) Scan(userID, scanID string) (*storage.Scan, error) {
	return e.Storage.GetScan(userID, scanID)
}

// WordStats returns the words most indicative of spam and ham.
func (e *Engine) WordStats() (model.WordStats, error) {
	m, err := e.Models.Current()
	if err != nil {
		return model.WordStats{}, err
	}
	return m.GlobalWordStats(), nil
}

// Snapshot returns a copy of the counters.
func (e *Engine) Snapshot() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Stats
}

func (e *Engine) clean(msg string) string {
	if e.Config.Model.StripHTML {
		return textclean.Clean(msg)
	}
	return msg
}

// Percent converts a probability to a percentage rounded to 2 decimals.
func Percent(p float64) float64 {
	return math.Round(p*10000) / 100
}

func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if info.Confidence < 0.5 {
		return ""
	}
	return info.Lang.Iso6391()
}
