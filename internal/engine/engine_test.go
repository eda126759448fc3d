package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spam-detection/backend/internal/auth"
	"github.com/spam-detection/backend/internal/config"
	"github.com/spam-detection/backend/internal/engine"
	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/model"
	"github.com/spam-detection/backend/internal/storage"
)

const testDataset = `Spam/Ham,Subject,Message
spam,WIN a prize,"Claim your free money now, click the link"
spam,Cheap pills,"Buy cheap pills online, free shipping"
spam,Urgent,"Your account won a lottery prize, send bank details"
ham,Lunch,Are we still meeting for lunch at noon?
ham,Report,Attached is the quarterly report for review
ham,Re: meeting,Moving our meeting to Thursday afternoon
`

// Mocks

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateUser(user *storage.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) GetUser(id string) (*storage.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockStorage) GetUserByEmail(email string) (*storage.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockStorage) UpdateSettings(id string, settings storage.Settings) error {
	args := m.Called(id, settings)
	return args.Error(0)
}

func (m *MockStorage) AddScan(userID string, scan *storage.Scan, limit int) error {
	args := m.Called(userID, scan, limit)
	return args.Error(0)
}

func (m *MockStorage) AddScans(userID string, scans []*storage.Scan, limit int) error {
	args := m.Called(userID, scans, limit)
	return args.Error(0)
}

func (m *MockStorage) ListScans(userID string) ([]*storage.Scan, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.Scan), args.Error(1)
}

func (m *MockStorage) GetScan(userID, scanID string) (*storage.Scan, error) {
	args := m.Called(userID, scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Scan), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	datasetPath := filepath.Join(dir, "dataset.csv")
	require.NoError(t, os.WriteFile(datasetPath, []byte(testDataset), 0o644))

	return &config.Config{
		Model: config.ModelConfig{
			DatasetPath:  datasetPath,
			ModelPath:    filepath.Join(dir, "model.json"),
			TrainOnStart: true,
			StripHTML:    true,
		},
		Storage: config.StorageConfig{
			Backend:      config.BackendFile,
			Dir:          filepath.Join(dir, "data"),
			HistoryLimit: 3,
		},
		Auth: config.AuthConfig{
			JWTSecret:      "test-secret",
			TokenTTL:       time.Hour,
			Issuer:         "spam-api",
			HashMemoryKB:   1024,
			HashIterations: 1,
			HashThreads:    1,
		},
	}
}

func setupEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := testConfig(t)
	store, err := storage.NewFileStorage(cfg.Storage.Dir)
	require.NoError(t, err)

	logger := logrus.New().WithField("test", "engine")
	eng := engine.NewEngine(cfg, logger, store, model.NewRegistry(nil))
	require.NoError(t, eng.InitModel(context.Background()))
	return eng
}

func TestNewEngine(t *testing.T) {
	cfg := testConfig(t)
	logger := logrus.New().WithField("test", "engine")
	store := new(MockStorage)

	eng := engine.NewEngine(cfg, logger, store, model.NewRegistry(nil))

	assert.NotNil(t, eng)
	assert.NotNil(t, eng.Tokens)
	assert.Equal(t, auth.HashParams{MemoryKB: 1024, Iterations: 1, Threads: 1}, eng.Hasher.Params())
	assert.Equal(t, store, eng.Storage)
	assert.False(t, eng.Snapshot().StartTime.IsZero())

	_, err := eng.WordStats()
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
}

func TestInitModel_TrainsAndSaves(t *testing.T) {
	eng := setupEngine(t)

	_, err := os.Stat(eng.Config.Model.ModelPath)
	assert.NoError(t, err)
	assert.False(t, eng.Snapshot().LastTrained.IsZero())

	m, err := eng.Models.Current()
	require.NoError(t, err)
	assert.Equal(t, 6, m.NumDocuments())
}

func TestInitModel_LoadsSavedModel(t *testing.T) {
	trained := setupEngine(t)

	cfg := *trained.Config
	cfg.Model.TrainOnStart = false
	cfg.Model.DatasetPath = filepath.Join(t.TempDir(), "missing.csv")

	eng := engine.NewEngine(&cfg, logrus.New().WithField("test", "engine"), trained.Storage, model.NewRegistry(nil))
	require.NoError(t, eng.InitModel(context.Background()))

	m, err := eng.Models.Current()
	require.NoError(t, err)
	prev, _ := trained.Models.Current()
	assert.Equal(t, prev.VocabularySize(), m.VocabularySize())
}

func TestInitModel_Failures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.DatasetPath = filepath.Join(t.TempDir(), "missing.csv")
	eng := engine.NewEngine(cfg, logrus.New().WithField("test", "engine"), new(MockStorage), model.NewRegistry(nil))
	assert.ErrorIs(t, eng.InitModel(context.Background()), apperrors.ErrInvalidDataset)

	cfg.Model.TrainOnStart = false
	assert.ErrorIs(t, eng.InitModel(context.Background()), apperrors.ErrModelUnavailable)
}

func TestRegisterAndLogin(t *testing.T) {
	eng := setupEngine(t)

	user, token, err := eng.Register(auth.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.Equal(t, storage.DefaultSettings(), user.Settings)

	id, err := eng.Tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, _, err = eng.Register(auth.RegisterRequest{Username: "alice2", Email: "ALICE@example.com", Password: "password123"})
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)

	_, _, err = eng.Register(auth.RegisterRequest{Username: "al", Email: "x@example.com", Password: "short"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	logged, token, err := eng.Login(auth.LoginRequest{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.NotEmpty(t, token)

	_, _, err = eng.Login(auth.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, _, err = eng.Login(auth.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUpdateSettings(t *testing.T) {
	eng := setupEngine(t)
	user, _, err := eng.Register(auth.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	settings, err := eng.UpdateSettings(user.ID, storage.Settings{Theme: "dark", Notifications: false})
	require.NoError(t, err)
	assert.Equal(t, "dark", settings.Theme)

	got, err := eng.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, settings, got.Settings)

	_, err = eng.UpdateSettings(user.ID, storage.Settings{Theme: "neon"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPredict(t *testing.T) {
	eng := setupEngine(t)

	scans, err := eng.Predict(context.Background(), "user-1", []string{
		"Claim your free prize money now",
		"Meeting moved to Thursday for the report review",
	})
	require.NoError(t, err)
	require.Len(t, scans, 2)

	assert.Equal(t, "spam", scans[0].Prediction)
	assert.Equal(t, "ham", scans[1].Prediction)
	for _, s := range scans {
		assert.NotEmpty(t, s.ID)
		assert.GreaterOrEqual(t, s.Confidence, 50.0)
		assert.LessOrEqual(t, s.Confidence, 100.0)
		assert.NotEmpty(t, s.WordInfluence)
		assert.LessOrEqual(t, len(s.WordInfluence), model.MaxMessageWords)
	}

	history, err := eng.History("user-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, scans[1].ID, history[0].ID)

	got, err := eng.Scan("user-1", scans[0].ID)
	require.NoError(t, err)
	assert.Equal(t, scans[0].Message, got.Message)

	snap := eng.Snapshot()
	assert.EqualValues(t, 2, snap.MessagesScanned)
	assert.EqualValues(t, 1, snap.SpamDetected)
}

func TestPredict_HistoryLimit(t *testing.T) {
	eng := setupEngine(t)
	for i := 0; i < 5; i++ {
		_, err := eng.Predict(context.Background(), "user-1", []string{"free money prize"})
		require.NoError(t, err)
	}
	history, err := eng.History("user-1")
	require.NoError(t, err)
	assert.Len(t, history, eng.Config.Storage.HistoryLimit)
}

func TestPredict_InvalidInput(t *testing.T) {
	eng := setupEngine(t)

	_, err := eng.Predict(context.Background(), "user-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = eng.Predict(context.Background(), "user-1", []string{"free money", "  !! "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// markup only
	_, err = eng.Predict(context.Background(), "user-1", []string{"<p> </p>"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	history, err := eng.History("user-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPredict_UnknownWordsUsePriors(t *testing.T) {
	eng := setupEngine(t)
	scans, err := eng.Predict(context.Background(), "user-1", []string{"zzqx wvvy"})
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Empty(t, scans[0].WordInfluence)
	assert.Equal(t, 50.0, scans[0].Confidence)
	assert.Equal(t, "ham", scans[0].Prediction)
}

func TestPredict_NoModel(t *testing.T) {
	cfg := testConfig(t)
	eng := engine.NewEngine(cfg, logrus.New().WithField("test", "engine"), new(MockStorage), model.NewRegistry(nil))
	_, err := eng.Predict(context.Background(), "user-1", []string{"hello there"})
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
}

func TestPredict_StorageError(t *testing.T) {
	trained := setupEngine(t)
	store := new(MockStorage)
	store.On("AddScans", "user-1", mock.MatchedBy(func(scans []*storage.Scan) bool {
		return len(scans) == 3
	}), 3).Return(errors.New("disk full")).Once()

	eng := engine.NewEngine(trained.Config, logrus.New().WithField("test", "engine"), store, trained.Models)
	_, err := eng.Predict(context.Background(), "user-1", []string{"free money", "lunch at noon", "cheap pills"})
	assert.ErrorContains(t, err, "disk full")
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "AddScan", mock.Anything, mock.Anything, mock.Anything)

	snap := eng.Snapshot()
	assert.Zero(t, snap.MessagesScanned)
}

func TestPredict_FailedBatchLeavesNoHistory(t *testing.T) {
	eng := setupEngine(t)

	// the last message has nothing to classify
	_, err := eng.Predict(context.Background(), "user-1", []string{"free money", "lunch at noon", "!!"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Predict(ctx, "user-1", []string{"free money", "lunch at noon"})
	require.ErrorIs(t, err, context.Canceled)

	history, err := eng.History("user-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPredict_Cancelled(t *testing.T) {
	eng := setupEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Predict(ctx, "user-1", []string{"free money"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWordStats(t *testing.T) {
	eng := setupEngine(t)
	stats, err := eng.WordStats()
	require.NoError(t, err)
	assert.NotEmpty(t, stats.SpamWords)
	assert.NotEmpty(t, stats.HamWords)
	for _, w := range stats.HamWords {
		assert.GreaterOrEqual(t, w.Weight, 0.0)
	}
}

func TestRetrain(t *testing.T) {
	eng := setupEngine(t)
	m, err := eng.Retrain(context.Background())
	require.NoError(t, err)
	current, _ := eng.Models.Current()
	assert.Same(t, m, current)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 97.53, engine.Percent(0.975312))
	assert.Equal(t, 100.0, engine.Percent(1))
	assert.Equal(t, 50.0, engine.Percent(0.5))
}
