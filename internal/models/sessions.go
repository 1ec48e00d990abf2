package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func CreateSession(ctx context.Context, q Querier, s *Session) error {
	_, err := q.ExecContext(ctx, `INSERT INTO sessions (token, account_id, is_moderator, csrf_token, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)`, s.Token, s.AccountID, s.IsModerator, s.CSRFToken, s.CreatedAt, s.LastActivity)
	if err != nil {
		return fmt.Errorf("create session for account %d: %w", s.AccountID, err)
	}
	return nil
}

func GetSession(ctx context.Context, q Querier, token string) (*Session, error) {
	var s Session
	err := q.QueryRowContext(ctx, `SELECT token, account_id, is_moderator, csrf_token, created_at, last_activity
		FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.AccountID, &s.IsModerator, &s.CSRFToken, &s.CreatedAt, &s.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func TouchSession(ctx context.Context, q Querier, token string, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE token = ?`, at, token)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return expectOne(res, "session")
}

// DeleteSession is idempotent.
func DeleteSession(ctx context.Context, q Querier, token string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteIdleSessions removes sessions whose last activity is before cutoff.
func DeleteIdleSessions(ctx context.Context, q Querier, cutoff time.Time) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
