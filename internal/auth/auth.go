package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"forumcore/internal/clock"
	"forumcore/internal/logging"
	"forumcore/internal/models"
	"forumcore/internal/session"
)

// PromotionRule decides whether a new account starts as a moderator. It
// runs inside the registration transaction, before the account is inserted.
type PromotionRule func(ctx context.Context, q models.Querier) (bool, error)

// IsFirstRegistrant promotes the first account ever created. This is the
// only implicit privilege escalation; replace it with NoPromotion once
// moderators are provisioned explicitly.
func IsFirstRegistrant(ctx context.Context, q models.Querier) (bool, error) {
	n, err := models.CountAccounts(ctx, q)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// NoPromotion never promotes.
func NoPromotion(context.Context, models.Querier) (bool, error) { return false, nil }

// Service implements registration, login and logout.
type Service struct {
	db       *sql.DB
	sessions *session.Manager
	verifier Verifier
	promote  PromotionRule
	clock    clock.Clock
	log      *slog.Logger
}

type Option func(*Service)

func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

func WithPromotionRule(r PromotionRule) Option {
	return func(s *Service) { s.promote = r }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrReal(c) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = logging.OrDiscard(l) }
}

func NewService(db *sql.DB, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		db:       db,
		sessions: sessions,
		verifier: BcryptVerifier{},
		promote:  IsFirstRegistrant,
		clock:    clock.Real{},
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. Duplicate usernames (case-insensitive) and
// emails are reported as validation errors.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	hash, err := s.verifier.Hash(password)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback()

	moderator, err := s.promote(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("promotion rule: %w", err)
	}
	a := &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsModerator:  moderator,
		CreatedAt:    s.clock.Now(),
	}
	if err := models.CreateAccount(ctx, tx, a); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}

	s.log.Info("account registered", "account_id", a.ID, "username", a.Username, "moderator", a.IsModerator)
	return a, nil
}

// Login verifies credentials and opens a session carrying the account's
// current role as its snapshot.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Account, *models.Session, error) {
	a, err := models.GetAccountByUsername(ctx, s.db, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.log.Warn("login for unknown account", "username", username)
			return nil, nil, models.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !s.verifier.Verify(a.PasswordHash, password) {
		s.log.Warn("login with wrong password", "account_id", a.ID)
		return nil, nil, models.ErrInvalidCredentials
	}

	now := s.clock.Now()
	if err := models.SetLastLogin(ctx, s.db, a.ID, now); err != nil {
		return nil, nil, err
	}
	a.LastLoginAt = &now

	sess, err := s.sessions.Create(ctx, a.ID, a.IsModerator)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("login", "account_id", a.ID, "moderator", a.IsModerator)
	return a, sess, nil
}

// Logout destroys the session. It is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// Account returns the stored account for id.
func (s *Service) Account(ctx context.Context, id int) (*models.Account, error) {
	return models.GetAccountByID(ctx, s.db, id)
}

// SetModerator provisions or revokes moderator rights explicitly. Sessions
// already open keep their role snapshot until the account logs in again.
func (s *Service) SetModerator(ctx context.Context, username string, moderator bool) error {
	if err := models.SetModerator(ctx, s.db, username, moderator); err != nil {
		return err
	}
	s.log.Info("moderator flag changed", "username", username, "moderator", moderator)
	return nil
}
