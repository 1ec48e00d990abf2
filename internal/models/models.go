package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Account struct {
	ID           int        `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsModerator  bool       `json:"is_moderator"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Session is server-held state keyed by an opaque token. IsModerator is the
// role snapshot taken at login.
type Session struct {
	Token        string    `json:"-"`
	AccountID    int       `json:"account_id"`
	IsModerator  bool      `json:"is_moderator"`
	CSRFToken    string    `json:"csrf_token"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

type Post struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsDeleted bool      `json:"is_deleted"`
	IsLocked  bool      `json:"is_locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Comment struct {
	ID        int       `json:"id"`
	PostID    int       `json:"post_id"`
	UserID    int       `json:"user_id"`
	Body      string    `json:"body"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetType names the kind of content a report or restore refers to.
type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetComment TargetType = "comment"
)

func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(s) {
	case TargetPost, TargetComment:
		return TargetType(s), nil
	}
	return "", Invalid("target_type", fmt.Sprintf("unknown target type %q", s))
}

type ReportStatus string

const (
	ReportOpen     ReportStatus = "open"
	ReportResolved ReportStatus = "resolved"
)

func ParseReportStatus(s string) (ReportStatus, error) {
	switch ReportStatus(s) {
	case ReportOpen, ReportResolved:
		return ReportStatus(s), nil
	}
	return "", Invalid("status", fmt.Sprintf("unknown report status %q", s))
}

// Report references exactly one post or comment.
type Report struct {
	ID         int          `json:"id"`
	TargetType TargetType   `json:"target_type"`
	TargetID   int          `json:"target_id"`
	ReporterID int          `json:"reporter_id"`
	Reason     string       `json:"reason"`
	Status     ReportStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
	ResolvedBy *int         `json:"resolved_by,omitempty"`
}

type scanner interface {
	Scan(dest ...any) error
}
