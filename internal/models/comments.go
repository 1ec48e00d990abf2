package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const commentColumns = `id, post_id, user_id, body, is_deleted, created_at, updated_at`

// CreateCommentIfOpen inserts c only if its parent post is live and
// unlocked at the moment of the insert. It reports whether a row was written.
func CreateCommentIfOpen(ctx context.Context, q Querier, c *Comment) (bool, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO comments (post_id, user_id, body, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM posts WHERE id = ? AND is_deleted = 0 AND is_locked = 0)`,
		c.PostID, c.UserID, c.Body, c.CreatedAt, c.UpdatedAt, c.PostID)
	if err != nil {
		return false, fmt.Errorf("create comment on post %d: %w", c.PostID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("get comment id: %w", err)
	}
	c.ID = int(id)
	return true, nil
}

// GetComment returns the comment whatever its deletion state.
func GetComment(ctx context.Context, q Querier, id int) (*Comment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return c, nil
}

// ListComments returns a post's comments oldest first. Deleted comments are
// included only when includeDeleted is set.
func ListComments(ctx context.Context, q Querier, postID int, includeDeleted bool) ([]Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE post_id = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments for post %d: %w", postID, err)
	}
	defer rows.Close()
	var cs []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, *c)
	}
	return cs, rows.Err()
}

func UpdateComment(ctx context.Context, q Querier, id int, body string, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE comments SET body = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`, body, at, id)
	if err != nil {
		return fmt.Errorf("update comment %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("comment %d", id))
}

func SetCommentDeleted(ctx context.Context, q Querier, id int, deleted bool) error {
	res, err := q.ExecContext(ctx, `UPDATE comments SET is_deleted = ? WHERE id = ?`, deleted, id)
	if err != nil {
		return fmt.Errorf("set comment %d deleted: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("comment %d", id))
}

func scanComment(row scanner) (*Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Body, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
