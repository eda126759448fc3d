package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Settings are the per-user UI preferences.
type Settings struct {
	Theme         string `json:"theme" validate:"required,oneof=system light dark"`
	Notifications bool   `json:"notifications"`
}

// DefaultSettings are assigned on registration.
func DefaultSettings() Settings {
	return Settings{Theme: "system", Notifications: true}
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password"`
	CreatedAt    time.Time `json:"created_at"`
	Settings     Settings  `json:"settings"`
}

// WordWeight is one word's signed contribution to a scan's prediction.
type WordWeight struct {
	Word      string  `json:"word"`
	Influence float64 `json:"influence"`
}

// Scan is one classified message in a user's history.
type Scan struct {
	ID            string       `json:"id"`
	Message       string       `json:"message"`
	Prediction    string       `json:"prediction"`
	Confidence    float64      `json:"confidence"`
	Timestamp     time.Time    `json:"timestamp"`
	Language      string       `json:"language,omitempty"`
	WordInfluence []WordWeight `json:"word_influence"`
}

// UserStore persists accounts. CreateUser enforces unique email and username.
type UserStore interface {
	CreateUser(user *User) error
	GetUser(id string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	UpdateSettings(id string, settings Settings) error
}

// HistoryStore keeps each user's scans, most recent first. AddScans stores a
// batch all-or-nothing, later entries of the batch ending up first.
type HistoryStore interface {
	AddScan(userID string, scan *Scan, limit int) error
	AddScans(userID string, scans []*Scan, limit int) error
	ListScans(userID string) ([]*Scan, error)
	GetScan(userID, scanID string) (*Scan, error)
}

// Storage is the full persistence surface of the service.
type Storage interface {
	UserStore
	HistoryStore
	Close() error
}

// WriteFileAtomic writes data to a temp file in the target directory and renames it
// over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func insertScans(history []*Scan, batch []*Scan, limit int) []*Scan {
	merged := make([]*Scan, 0, len(batch)+len(history))
	for i := len(batch) - 1; i >= 0; i-- {
		merged = append(merged, batch[i])
	}
	merged = append(merged, history...)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
