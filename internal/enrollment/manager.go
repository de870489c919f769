package enrollment

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/observability"
)

const (
	defaultSessionTTL = 10 * time.Minute
	maxUserIDLength   = 255
)

// Manager keeps the open sessions. A user has at most one open session;
// opening another closes the previous one.
type Manager struct {
	deps   Deps
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	byUser   map[string]uuid.UUID
}

// NewManager creates a Manager. Sessions idle for longer than ttl are
// closed by Run.
func NewManager(deps Deps, ttl time.Duration) *Manager {
	deps = deps.withDefaults()
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Manager{
		deps:     deps,
		ttl:      ttl,
		logger:   deps.Logger,
		sessions: make(map[uuid.UUID]*Session),
		byUser:   make(map[string]uuid.UUID),
	}
}

// Open registers a new idle session for userID on cam.
func (m *Manager) Open(userID string, cam camera.Camera) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > maxUserIDLength {
		return nil, domain.ErrValidationFailed
	}

	s := NewSession(userID, cam, m.deps)

	m.mu.Lock()
	var previous *Session
	if id, ok := m.byUser[userID]; ok {
		previous = m.sessions[id]
		delete(m.sessions, id)
	}
	m.sessions[s.ID()] = s
	m.byUser[userID] = s.ID()
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
		observability.ActiveSessions.Dec()
		m.logger.Info("replaced open enrollment session",
			slog.String("user_id", userID),
			slog.String("previous_session_id", previous.ID().String()),
		)
	}
	observability.ActiveSessions.Inc()

	return s, nil
}

// Get returns the open session with id.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Cancel cancels the session and forgets it. A completed session is
// closed and forgotten instead.
func (m *Manager) Cancel(id uuid.UUID) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if s.Status().State == StateDone {
		s.Close()
		m.remove(s)
		return nil
	}
	if err := s.Cancel(); err != nil {
		return err
	}
	m.remove(s)
	return nil
}

// Close closes the session from any state and forgets it.
func (m *Manager) Close(id uuid.UUID) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close()
	m.remove(s)
	return nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.ID()]
	if ok {
		delete(m.sessions, s.ID())
		if m.byUser[s.UserID()] == s.ID() {
			delete(m.byUser, s.UserID())
		}
	}
	m.mu.Unlock()

	if ok {
		observability.ActiveSessions.Dec()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes every session idle since before now-ttl and returns how
// many were closed.
func (m *Manager) Reap() int {
	cutoff := m.deps.Clock.Now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
		m.remove(s)
		m.logger.Info("closed idle enrollment session",
			slog.String("session_id", s.ID().String()),
			slog.String("user_id", s.UserID()),
		)
	}
	return len(stale)
}

// Run reaps idle sessions until ctx is done, then closes all sessions.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := m.deps.Clock.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("enrollment session reaper started", "ttl", m.ttl)

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			m.logger.Info("enrollment session reaper stopped")
			return
		case <-ticker.Chan():
			if n := m.Reap(); n > 0 {
				m.logger.Debug("reaped enrollment sessions", "closed", n)
			}
		}
	}
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
		m.remove(s)
	}
}
