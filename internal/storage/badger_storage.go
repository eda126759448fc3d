package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/spam-detection/backend/internal/errors"
)

// BadgerStorage implements Storage on an embedded BadgerDB.
//
// Keys:
//
//	user:<id>          JSON User
//	email:<email>      user id (lower-cased email)
//	username:<name>    user id
//	history:<id>       JSON []Scan, most recent first
type BadgerStorage struct {
	db *badger.DB

	// serializes read-modify-write updates per user
	locks [userLockStripes]sync.Mutex
}

const (
	userLockStripes    = 64
	maxConflictRetries = 5
)

// NewBadgerStorage opens (or creates) a database under dir.
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return &BadgerStorage{db: db}, nil
}

// NewBadgerStorageWithDB wraps an already opened database.
func NewBadgerStorageWithDB(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db}
}

func userKey(id string) []byte           { return []byte("user:" + id) }
func emailKey(email string) []byte       { return []byte("email:" + strings.ToLower(email)) }
func usernameKey(username string) []byte { return []byte("username:" + username) }
func historyKey(id string) []byte        { return []byte("history:" + id) }

func (s *BadgerStorage) CreateUser(user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(user.Email)); err == nil {
			return apperrors.ErrEmailTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return apperrors.ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(userKey(user.ID), data); err != nil {
			return err
		}
		if err := txn.Set(emailKey(user.Email), []byte(user.ID)); err != nil {
			return err
		}
		if err := txn.Set(usernameKey(user.Username), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(historyKey(user.ID), []byte("[]"))
	})
}

func (s *BadgerStorage) GetUser(id string) (*User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BadgerStorage) GetUserByEmail(email string) (*User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(string(id)), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BadgerStorage) UpdateSettings(id string, settings Settings) error {
	err := s.updateUser(id, func(txn *badger.Txn) error {
		var user User
		if err := getJSON(txn, userKey(id), &user); err != nil {
			return err
		}
		user.Settings = settings
		return setJSON(txn, userKey(id), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrUserNotFound
	}
	return err
}

func (s *BadgerStorage) AddScan(userID string, scan *Scan, limit int) error {
	return s.AddScans(userID, []*Scan{scan}, limit)
}

func (s *BadgerStorage) AddScans(userID string, scans []*Scan, limit int) error {
	return s.updateUser(userID, func(txn *badger.Txn) error {
		var history []*Scan
		if err := getJSON(txn, historyKey(userID), &history); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, historyKey(userID), insertScans(history, scans, limit))
	})
}

func (s *BadgerStorage) ListScans(userID string) ([]*Scan, error) {
	scans := []*Scan{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, historyKey(userID), &scans)
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	return scans, nil
}

func (s *BadgerStorage) GetScan(userID, scanID string) (*Scan, error) {
	scans, err := s.ListScans(userID)
	if err != nil {
		return nil, err
	}
	for _, scan := range scans {
		if scan.ID == scanID {
			return scan, nil
		}
	}
	return nil, apperrors.ErrScanNotFound
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// updateUser runs fn in a read-write transaction holding the lock for userID.
// A commit that still conflicts with another writer is retried.
func (s *BadgerStorage) updateUser(userID string, fn func(txn *badger.Txn) error) error {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &s.locks[h.Sum32()%userLockStripes]
	mu.Lock()
	defer mu.Unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("update for user %s kept conflicting: %w", userID, err)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}
