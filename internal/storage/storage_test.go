package storage_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/storage"
)

func newUser(username, email string) *storage.User {
	return &storage.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		Settings:     storage.DefaultSettings(),
	}
}

func backends(t *testing.T) map[string]storage.Storage {
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)

	stores := map[string]storage.Storage{
		"file":   fs,
		"badger": storage.NewBadgerStorageWithDB(db),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestUsers(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			alice := newUser("alice", "alice@example.com")
			require.NoError(t, store.CreateUser(alice))

			loaded, err := store.GetUser(alice.ID)
			require.NoError(t, err)
			assert.Equal(t, alice.Email, loaded.Email)
			assert.Equal(t, "system", loaded.Settings.Theme)

			byEmail, err := store.GetUserByEmail("Alice@Example.com")
			require.NoError(t, err)
			assert.Equal(t, alice.ID, byEmail.ID)

			err = store.CreateUser(newUser("other", "alice@example.com"))
			assert.ErrorIs(t, err, apperrors.ErrEmailTaken)

			err = store.CreateUser(newUser("alice", "other@example.com"))
			assert.ErrorIs(t, err, apperrors.ErrUsernameTaken)

			require.NoError(t, store.UpdateSettings(alice.ID, storage.Settings{Theme: "dark"}))
			loaded, err = store.GetUser(alice.ID)
			require.NoError(t, err)
			assert.Equal(t, "dark", loaded.Settings.Theme)
			assert.False(t, loaded.Settings.Notifications)

			_, err = store.GetUser("missing")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
			_, err = store.GetUserByEmail("missing@example.com")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
			assert.ErrorIs(t, store.UpdateSettings("missing", storage.DefaultSettings()), apperrors.ErrUserNotFound)
		})
	}
}

func TestHistory(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			userID := uuid.NewString()

			scans, err := store.ListScans(userID)
			require.NoError(t, err)
			assert.Empty(t, scans)

			var ids []string
			for i := 0; i < 5; i++ {
				scan := &storage.Scan{
					ID:         uuid.NewString(),
					Message:    "message",
					Prediction: "ham",
					Confidence: 90,
					Timestamp:  time.Now().UTC(),
					WordInfluence: []storage.WordWeight{
						{Word: "message", Influence: -0.5},
					},
				}
				ids = append(ids, scan.ID)
				require.NoError(t, store.AddScan(userID, scan, 3))
			}

			scans, err = store.ListScans(userID)
			require.NoError(t, err)
			require.Len(t, scans, 3)
			// most recent first
			assert.Equal(t, ids[4], scans[0].ID)
			assert.Equal(t, ids[2], scans[2].ID)

			scan, err := store.GetScan(userID, ids[3])
			require.NoError(t, err)
			assert.Equal(t, "message", scan.WordInfluence[0].Word)

			_, err = store.GetScan(userID, ids[0])
			assert.ErrorIs(t, err, apperrors.ErrScanNotFound)
		})
	}
}

func TestHistory_AddScans(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			userID := uuid.NewString()
			older := &storage.Scan{ID: "older", Prediction: "ham"}
			require.NoError(t, store.AddScan(userID, older, 3))

			batch := []*storage.Scan{
				{ID: "first", Prediction: "spam"},
				{ID: "second", Prediction: "ham"},
				{ID: "third", Prediction: "spam"},
			}
			require.NoError(t, store.AddScans(userID, batch, 3))

			scans, err := store.ListScans(userID)
			require.NoError(t, err)
			ids := make([]string, 0, len(scans))
			for _, s := range scans {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, []string{"third", "second", "first"}, ids)
		})
	}
}

func TestHistory_ConcurrentAddScan(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			userID := uuid.NewString()
			const writers = 20

			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- store.AddScan(userID, &storage.Scan{
						ID:         uuid.NewString(),
						Message:    "concurrent",
						Prediction: "spam",
						Timestamp:  time.Now().UTC(),
					}, 50)
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				assert.NoError(t, err)
			}
			scans, err := store.ListScans(userID)
			require.NoError(t, err)
			assert.Len(t, scans, writers)
		})
	}
}

func TestFileStorage_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStorage(dir)
	require.NoError(t, err)

	user := newUser("bob", "bob@example.com")
	require.NoError(t, fs.CreateUser(user))

	reopened, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	loaded, err := reopened.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", loaded.Username)

	_, err = os.Stat(filepath.Join(dir, "scan_history.json"))
	assert.NoError(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, storage.WriteFileAtomic(path, []byte("one"), 0644))
	require.NoError(t, storage.WriteFileAtomic(path, []byte("two"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	err = storage.WriteFileAtomic(filepath.Join(dir, "missing", "out.json"), []byte("x"), 0644)
	assert.Error(t, err)
}
