package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"keyword-notifier/pkg/notifier"
)

// ErrManagerClosed is returned by Start after CloseAll.
var ErrManagerClosed = errors.New("session manager closed")

// Manager owns the running sessions, at most one per subscriber.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

// NewManager creates a manager that builds sessions from cfg.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		cfg:      *cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// Start returns the subscriber's running session, starting one if none is
// registered or the registered one's loop has exited.
func (m *Manager) Start(subscriberID string) (*Session, error) {
	if subscriberID == "" {
		return nil, notifier.Invalid("subscriber", "must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[subscriberID]; ok {
		if s.Alive() {
			return s, nil
		}
		// The loop is gone; Close only releases what is left.
		if err := s.Close(); err != nil {
			m.logger.Warn("Failed to close stale session", "subscriber", subscriberID, "error", err)
		}
		delete(m.sessions, subscriberID)
	}

	s := New(subscriberID, &m.cfg)
	if err := s.Start(); err != nil {
		delete(m.sessions, subscriberID)
		return nil, fmt.Errorf("start session: %w", err)
	}
	m.sessions[subscriberID] = s
	return s, nil
}

// Get returns the subscriber's session if one is registered.
func (m *Manager) Get(subscriberID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[subscriberID]
	return s, ok
}

// Close destroys the subscriber's session.
func (m *Manager) Close(subscriberID string) error {
	m.mu.Lock()
	s, ok := m.sessions[subscriberID]
	delete(m.sessions, subscriberID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", subscriberID, notifier.ErrNotFound)
	}
	return s.Close()
}

// CloseAll closes every session concurrently and rejects further starts.
// Each close is bounded by the grace period.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Close(); err != nil {
				m.logger.Warn("Failed to close session", "subscriber", s.SubscriberID(), "error", err)
			}
		}()
	}
	wg.Wait()

	m.logger.Info("All sessions closed", "count", len(sessions))
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
