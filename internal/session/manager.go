package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"forumcore/internal/clock"
	"forumcore/internal/logging"
	"forumcore/internal/models"
)

// DefaultIdleTimeout applies when the manager is given a non-positive timeout.
const DefaultIdleTimeout = 1200 * time.Second

const csrfTokenBytes = 32

// Manager issues and validates sessions. Validation slides the idle window:
// every successful Validate moves LastActivity to the validation time.
type Manager struct {
	store    Store
	idle     time.Duration
	clock    clock.Clock
	log      *slog.Logger
	skipCSRF bool
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = clock.OrReal(c) }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = logging.OrDiscard(l) }
}

// WithCSRFBypass disables CSRF checks. Only debug and test wiring may set it.
func WithCSRFBypass(skip bool) Option {
	return func(m *Manager) { m.skipCSRF = skip }
}

func NewManager(store Store, idle time.Duration, opts ...Option) *Manager {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	m := &Manager{
		store: store,
		idle:  idle,
		clock: clock.Real{},
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.skipCSRF {
		m.log.Warn("csrf checks disabled")
	}
	return m
}

func (m *Manager) IdleTimeout() time.Duration { return m.idle }

// Create mints a session for accountID with the given role snapshot.
func (m *Manager) Create(ctx context.Context, accountID int, isModerator bool) (*models.Session, error) {
	csrf, err := newCSRFToken()
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	s := &models.Session{
		Token:        uuid.NewString(),
		AccountID:    accountID,
		IsModerator:  isModerator,
		CSRFToken:    csrf,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	m.log.Debug("session created", "account_id", accountID, "moderator", isModerator)
	return s, nil
}

// Validate checks token against the current time. See ValidateAt.
func (m *Manager) Validate(ctx context.Context, token string) (*models.Session, error) {
	return m.ValidateAt(ctx, token, m.clock.Now())
}

// ValidateAt returns the session for token, refreshing its LastActivity to
// now. It returns models.ErrSessionExpired when more than the idle timeout
// has passed since the last activity (the session is then destroyed), and
// models.ErrSessionInvalid for unknown or empty tokens.
func (m *Manager) ValidateAt(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	if token == "" {
		return nil, models.ErrSessionInvalid
	}
	s, err := m.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionInvalid
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if now.Sub(s.LastActivity) > m.idle {
		if err := m.store.Delete(ctx, token); err != nil {
			m.log.Error("deleting expired session", "account_id", s.AccountID, "error", err)
		}
		m.log.Info("session expired", "account_id", s.AccountID, "idle", now.Sub(s.LastActivity))
		return nil, models.ErrSessionExpired
	}

	if err := m.store.Touch(ctx, token, now); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionInvalid
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	s.LastActivity = now
	return s, nil
}

// Destroy invalidates token immediately. Unknown tokens are not an error.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}

// CheckCSRF compares the presented token with the session's. A missing or
// different token yields models.ErrCSRFMismatch.
func (m *Manager) CheckCSRF(s *models.Session, presented string) error {
	if m.skipCSRF {
		return nil
	}
	if s == nil || presented == "" || subtle.ConstantTimeCompare([]byte(s.CSRFToken), []byte(presented)) != 1 {
		return models.ErrCSRFMismatch
	}
	return nil
}

// Sweep deletes sessions idle for longer than the timeout.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	cutoff := m.clock.Now().Add(-m.idle)
	n, err := m.store.DeleteIdle(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	if n > 0 {
		m.log.Info("swept idle sessions", "count", n)
	}
	return n, nil
}

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
