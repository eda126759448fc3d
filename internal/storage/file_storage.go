package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/spam-detection/backend/internal/errors"
)

const (
	usersFile   = "users.json"
	historyFile = "scan_history.json"
)

// FileStorage implements Storage with two JSON documents on the local file system.
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates the directory and empty documents when missing.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	fs := &FileStorage{baseDir: baseDir}
	for _, name := range []string{usersFile, historyFile} {
		path := filepath.Join(baseDir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := WriteFileAtomic(path, []byte("{}"), 0644); err != nil {
				return nil, err
			}
		}
	}
	return fs, nil
}

func (fs *FileStorage) CreateUser(user *User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	users, err := fs.loadUsers()
	if err != nil {
		return err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperrors.ErrEmailTaken
		}
		if u.Username == user.Username {
			return apperrors.ErrUsernameTaken
		}
	}
	users[user.ID] = user
	if err := fs.save(usersFile, users); err != nil {
		return err
	}

	history, err := fs.loadHistory()
	if err != nil {
		return err
	}
	if _, ok := history[user.ID]; !ok {
		history[user.ID] = []*Scan{}
	}
	return fs.save(historyFile, history)
}

func (fs *FileStorage) GetUser(id string) (*User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	users, err := fs.loadUsers()
	if err != nil {
		return nil, err
	}
	user, ok := users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (fs *FileStorage) GetUserByEmail(email string) (*User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	users, err := fs.loadUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (fs *FileStorage) UpdateSettings(id string, settings Settings) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	users, err := fs.loadUsers()
	if err != nil {
		return err
	}
	user, ok := users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.Settings = settings
	return fs.save(usersFile, users)
}

func (fs *FileStorage) AddScan(userID string, scan *Scan, limit int) error {
	return fs.AddScans(userID, []*Scan{scan}, limit)
}

func (fs *FileStorage) AddScans(userID string, scans []*Scan, limit int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	history, err := fs.loadHistory()
	if err != nil {
		return err
	}
	history[userID] = insertScans(history[userID], scans, limit)
	return fs.save(historyFile, history)
}

func (fs *FileStorage) ListScans(userID string) ([]*Scan, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	history, err := fs.loadHistory()
	if err != nil {
		return nil, err
	}
	scans := history[userID]
	if scans == nil {
		scans = []*Scan{}
	}
	return scans, nil
}

func (fs *FileStorage) GetScan(userID, scanID string) (*Scan, error) {
	scans, err := fs.ListScans(userID)
	if err != nil {
		return nil, err
	}
	for _, s := range scans {
		if s.ID == scanID {
			return s, nil
		}
	}
	return nil, apperrors.ErrScanNotFound
}

// Close is a no-op for file storage
func (fs *FileStorage) Close() error {
	return nil
}

func (fs *FileStorage) loadUsers() (map[string]*User, error) {
	users := make(map[string]*User)
	if err := fs.load(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (fs *FileStorage) loadHistory() (map[string][]*Scan, error) {
	history := make(map[string][]*Scan)
	if err := fs.load(historyFile, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (fs *FileStorage) load(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(fs.baseDir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

func (fs *FileStorage) save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return WriteFileAtomic(filepath.Join(fs.baseDir, name), data, 0644)
}
