package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"forumcore/internal/config"
	"forumcore/internal/models"
)

// Store holds session records keyed by token. Get returns
// models.ErrNotFound for unknown tokens.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, token string) (*models.Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// NewStore creates the store named by kind ("sqlite" or "memory").
func NewStore(kind string, db *sql.DB) (Store, error) {
	switch kind {
	case config.StoreSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite session store requires a database")
		}
		return NewSQLStore(db), nil
	case config.StoreMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown session store type: %q", kind)
}

// SQLStore keeps sessions in the sessions table, so they survive restarts.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, sess *models.Session) error {
	return models.CreateSession(ctx, s.db, sess)
}

func (s *SQLStore) Get(ctx context.Context, token string) (*models.Session, error) {
	return models.GetSession(ctx, s.db, token)
}

func (s *SQLStore) Touch(ctx context.Context, token string, at time.Time) error {
	return models.TouchSession(ctx, s.db, token, at)
}

func (s *SQLStore) Delete(ctx context.Context, token string) error {
	return models.DeleteSession(ctx, s.db, token)
}

func (s *SQLStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	return models.DeleteIdleSessions(ctx, s.db, cutoff)
}

// MemoryStore keeps sessions in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	csrf     map[string]string // csrf token -> session token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		csrf:     make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Token]; ok {
		return fmt.Errorf("session token already in use")
	}
	if _, ok := m.csrf[s.CSRFToken]; ok {
		return fmt.Errorf("csrf token already in use")
	}
	m.sessions[s.Token] = *s
	m.csrf[s.CSRFToken] = s.Token
	return nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Touch(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return models.ErrNotFound
	}
	s.LastActivity = at
	m.sessions[token] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(token)
	return nil
}

func (m *MemoryStore) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			m.remove(token)
			n++
		}
	}
	return n, nil
}

// remove must be called with mu held.
func (m *MemoryStore) remove(token string) {
	if s, ok := m.sessions[token]; ok {
		delete(m.csrf, s.CSRFToken)
		delete(m.sessions, token)
	}
}
