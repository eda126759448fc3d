package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spam-detection/backend/internal/config"
	apperrors "github.com/spam-detection/backend/internal/errors"
)

// Manager spaces out and caps concurrent requests per key (usually a user id)
type Manager struct {
	config    config.ThrottleConfig
	logger    *logrus.Entry
	keyStates map[string]*KeyState
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex

	// Statistics
	stats Statistics
}

// KeyState tracks the requests of a single key
type KeyState struct {
	lastRequestTime time.Time
	activeRequests  int
	lastAccess      time.Time
}

// Statistics holds throttle statistics
type Statistics struct {
	TotalRequests    int64     `json:"total_requests"`
	RejectedRequests int64     `json:"rejected_requests"`
	ActiveRequests   int64     `json:"active_requests"`
	TrackedKeys      int       `json:"tracked_keys"`
	StartTime        time.Time `json:"start_time"`
}

func NewManager(cfg config.ThrottleConfig, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.WithField("component", "throttle")
	}
	return &Manager{
		config:    cfg,
		logger:    logger,
		keyStates: make(map[string]*KeyState),
		stats:     Statistics{StartTime: time.Now()},
	}
}

// Start launches the cleanup worker
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("throttle is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.cleanupWorker(ctx)

	m.logger.Info("Throttle started")
	return nil
}

// Stop stops the cleanup worker and waits for it
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return apperrors.ErrThrottleClosed
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Throttle stopped")
	return nil
}

// Acquire reserves a slot for key. It fails with ErrRateLimited when key already has
// MaxConcurrent requests in flight, otherwise waits out MinDelay since the key's
// previous request. The returned release must be called once the work is done.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, apperrors.ErrThrottleClosed
	}

	m.stats.TotalRequests++
	state := m.getOrCreateKeyState(key)
	if m.config.MaxConcurrent > 0 && state.activeRequests >= m.config.MaxConcurrent {
		m.stats.RejectedRequests++
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d requests already in flight", apperrors.ErrRateLimited, state.activeRequests)
	}

	// Reserve the next send slot before releasing the lock so concurrent callers queue up
	now := time.Now()
	next := state.lastRequestTime.Add(m.config.MinDelay)
	if next.Before(now) {
		next = now
	}
	state.lastRequestTime = next
	state.activeRequests++
	state.lastAccess = now
	m.stats.ActiveRequests++
	m.mu.Unlock()

	release := sync.OnceFunc(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		state.activeRequests--
		state.lastAccess = time.Now()
		m.stats.ActiveRequests--
	})

	if wait := time.Until(next); wait > 0 {
		m.logger.WithFields(logrus.Fields{
			"key":       key,
			"wait_time": wait,
		}).Debug("Waiting for throttle delay")

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return release, nil
}

// GetStatistics returns a copy of the current statistics
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.TrackedKeys = len(m.keyStates)
	return stats
}

// getOrCreateKeyState must be called with m.mu held
func (m *Manager) getOrCreateKeyState(key string) *KeyState {
	if state, ok := m.keyStates[key]; ok {
		return state
	}
	state := &KeyState{lastAccess: time.Now()}
	m.keyStates[key] = state
	m.logger.WithField("key", key).Debug("Created new key state")
	return state
}

// cleanupWorker periodically drops idle key states
func (m *Manager) cleanupWorker(ctx context.Context) {
	defer m.wg.Done()

	interval := m.config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// Cleanup removes key states idle for longer than StateExpiry with nothing in flight
func (m *Manager) Cleanup() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for key, state := range m.keyStates {
		if state.activeRequests == 0 && now.Sub(state.lastAccess) > m.config.StateExpiry {
			delete(m.keyStates, key)
			expired++
		}
	}

	if expired > 0 {
		m.logger.WithField("expired_keys", expired).Debug("Cleanup completed")
	}
	return expired
}
