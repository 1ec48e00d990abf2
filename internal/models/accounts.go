package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const accountColumns = `id, username, email, password_hash, is_moderator, created_at, last_login_at`

func CreateAccount(ctx context.Context, q Querier, a *Account) error {
	res, err := q.ExecContext(ctx, `INSERT INTO accounts (username, email, password_hash, is_moderator, created_at)
		VALUES (?, ?, ?, ?, ?)`, a.Username, a.Email, a.PasswordHash, a.IsModerator, a.CreatedAt)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			if strings.Contains(se.Error(), "accounts.email") {
				return ErrDuplicateEmail
			}
			if strings.Contains(se.Error(), "accounts.username") {
				return ErrDuplicateUsername
			}
		}
		return fmt.Errorf("create account %s: %w", a.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get account id: %w", err)
	}
	a.ID = int(id)
	return nil
}

// GetAccountByUsername looks up an account case-insensitively.
func GetAccountByUsername(ctx context.Context, q Querier, username string) (*Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ? COLLATE NOCASE`, username)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", username, err)
	}
	return a, nil
}

func GetAccountByID(ctx context.Context, q Querier, id int) (*Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

func CountAccounts(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func SetLastLogin(ctx context.Context, q Querier, id int, at time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE accounts SET last_login_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("update last login for %d: %w", id, err)
	}
	return nil
}

// SetModerator changes the stored role. Live sessions keep their snapshot.
func SetModerator(ctx context.Context, q Querier, username string, moderator bool) error {
	res, err := q.ExecContext(ctx, `UPDATE accounts SET is_moderator = ? WHERE username = ? COLLATE NOCASE`, moderator, username)
	if err != nil {
		return fmt.Errorf("set moderator for %s: %w", username, err)
	}
	return expectOne(res, "account "+username)
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	var lastLogin sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsModerator, &a.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return &a, nil
}

// expectOne maps an update that touched no rows to ErrNotFound.
func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
