package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const postColumns = `id, user_id, title, body, is_deleted, is_locked, created_at, updated_at`

func CreatePost(ctx context.Context, q Querier, p *Post) error {
	res, err := q.ExecContext(ctx, `INSERT INTO posts (user_id, title, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Title, p.Body, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get post id: %w", err)
	}
	p.ID = int(id)
	return nil
}

// GetPost returns the post whatever its deletion state.
func GetPost(ctx context.Context, q Querier, id int) (*Post, error) {
	row := q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return p, nil
}

// ListPosts returns live posts, newest first.
func ListPosts(ctx context.Context, q Querier, limit, offset int) ([]Post, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+postColumns+` FROM posts
		WHERE is_deleted = 0 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// UpdatePost rewrites title and body of a live post. Concurrent edits are
// last-writer-wins.
func UpdatePost(ctx context.Context, q Querier, id int, title, body string, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE posts SET title = ?, body = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		title, body, at, id)
	if err != nil {
		return fmt.Errorf("update post %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("post %d", id))
}

func SetPostDeleted(ctx context.Context, q Querier, id int, deleted bool) error {
	res, err := q.ExecContext(ctx, `UPDATE posts SET is_deleted = ? WHERE id = ?`, deleted, id)
	if err != nil {
		return fmt.Errorf("set post %d deleted: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("post %d", id))
}

func SetPostLocked(ctx context.Context, q Querier, id int, locked bool) error {
	res, err := q.ExecContext(ctx, `UPDATE posts SET is_locked = ? WHERE id = ?`, locked, id)
	if err != nil {
		return fmt.Errorf("set post %d locked: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("post %d", id))
}

// TogglePostLocked flips the lock in one statement and returns the new state.
func TogglePostLocked(ctx context.Context, q Querier, id int) (bool, error) {
	var locked bool
	err := q.QueryRowContext(ctx, `UPDATE posts SET is_locked = NOT is_locked WHERE id = ? RETURNING is_locked`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("post %d: %w", id, ErrNotFound)
		}
		return false, fmt.Errorf("toggle post %d lock: %w", id, err)
	}
	return locked, nil
}

func scanPost(row scanner) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Body, &p.IsDeleted, &p.IsLocked, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
