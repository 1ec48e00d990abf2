// Package content implements the post and comment lifecycle: creation,
// editing, soft deletion and the comment gate on locked posts.
//
// Deleted content is treated as absent by every operation here. Moderators
// can still read it by id and restore it through the moderation engine.
package content

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"forumcore/internal/clock"
	"forumcore/internal/logging"
	"forumcore/internal/models"
	"forumcore/internal/policy"
)

const (
	maxTitleLen       = 255
	maxPostBodyLen    = 10000
	maxCommentBodyLen = 2000

	DefaultPageSize = 50
	MaxPageSize     = 100
)

type Service struct {
	db    *sql.DB
	clock clock.Clock
	log   *slog.Logger
}

func NewService(db *sql.DB, c clock.Clock, log *slog.Logger) *Service {
	return &Service{db: db, clock: clock.OrReal(c), log: logging.OrDiscard(log)}
}

func (s *Service) CreatePost(ctx context.Context, actor policy.Actor, title, body string) (*models.Post, error) {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if err := validatePost(title, body); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p := &models.Post{UserID: actor.ID, Title: title, Body: body, CreatedAt: now, UpdatedAt: now}
	if err := models.CreatePost(ctx, s.db, p); err != nil {
		return nil, err
	}
	s.log.Info("post created", "post_id", p.ID, "actor", actor.ID)
	return p, nil
}

// GetPost returns a post by id. Deleted posts are visible to moderators only.
func (s *Service) GetPost(ctx context.Context, actor policy.Actor, id int) (*models.Post, error) {
	p, err := models.GetPost(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted && !actor.IsModerator {
		return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	return p, nil
}

// ListPosts returns live posts, newest first.
func (s *Service) ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return models.ListPosts(ctx, s.db, limit, offset)
}

// EditPost replaces title and body. Deleted posts cannot be edited by anyone.
func (s *Service) EditPost(ctx context.Context, actor policy.Actor, id int, title, body string) (*models.Post, error) {
	p, err := s.livePost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanPerform(actor, policy.Edit, postTarget(p)) {
		return nil, s.deny(actor, policy.Edit, "post", id)
	}

	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if err := validatePost(title, body); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := models.UpdatePost(ctx, s.db, id, title, body, now); err != nil {
		return nil, err
	}
	p.Title, p.Body, p.UpdatedAt = title, body, now
	s.log.Info("post edited", "post_id", id, "actor", actor.ID)
	return p, nil
}

// DeletePost soft-deletes a post. Deleting an already deleted post is a
// no-op for moderators and not-found for everyone else.
func (s *Service) DeletePost(ctx context.Context, actor policy.Actor, id int) error {
	p, err := models.GetPost(ctx, s.db, id)
	if err != nil {
		return err
	}
	if p.IsDeleted {
		if actor.IsModerator {
			return nil
		}
		return fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	if !policy.CanPerform(actor, policy.Delete, postTarget(p)) {
		return s.deny(actor, policy.Delete, "post", id)
	}
	if err := models.SetPostDeleted(ctx, s.db, id, true); err != nil {
		return err
	}
	s.log.Info("post deleted", "post_id", id, "actor", actor.ID)
	return nil
}

// CreateComment adds a comment to a live, unlocked post. A missing or
// deleted post is not-found; a locked one is forbidden whatever the role.
func (s *Service) CreateComment(ctx context.Context, actor policy.Actor, postID int, body string) (*models.Comment, error) {
	p, err := s.livePost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !policy.CanPerform(actor, policy.Comment, postTarget(p)) {
		return nil, s.deny(actor, policy.Comment, "post", postID)
	}

	body = strings.TrimSpace(body)
	if err := validateComment(body); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	c := &models.Comment{PostID: postID, UserID: actor.ID, Body: body, CreatedAt: now, UpdatedAt: now}
	ok, err := models.CreateCommentIfOpen(ctx, s.db, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The post was deleted or locked after the checks above.
		if _, err := s.livePost(ctx, postID); err != nil {
			return nil, err
		}
		return nil, s.deny(actor, policy.Comment, "post", postID)
	}
	s.log.Info("comment created", "comment_id", c.ID, "post_id", postID, "actor", actor.ID)
	return c, nil
}

// GetComment returns a comment by id. Deleted comments are visible to
// moderators only.
func (s *Service) GetComment(ctx context.Context, actor policy.Actor, id int) (*models.Comment, error) {
	c, err := models.GetComment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted && !actor.IsModerator {
		return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	return c, nil
}

// ListComments returns the comments of a visible post. Moderators also see
// deleted comments.
func (s *Service) ListComments(ctx context.Context, actor policy.Actor, postID int) ([]models.Comment, error) {
	if _, err := s.GetPost(ctx, actor, postID); err != nil {
		return nil, err
	}
	return models.ListComments(ctx, s.db, postID, actor.IsModerator)
}

func (s *Service) EditComment(ctx context.Context, actor policy.Actor, id int, body string) (*models.Comment, error) {
	c, err := models.GetComment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	if !policy.CanPerform(actor, policy.Edit, commentTarget(c)) {
		return nil, s.deny(actor, policy.Edit, "comment", id)
	}

	body = strings.TrimSpace(body)
	if err := validateComment(body); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := models.UpdateComment(ctx, s.db, id, body, now); err != nil {
		return nil, err
	}
	c.Body, c.UpdatedAt = body, now
	s.log.Info("comment edited", "comment_id", id, "actor", actor.ID)
	return c, nil
}

// DeleteComment soft-deletes a comment, with the same already-deleted
// handling as DeletePost.
func (s *Service) DeleteComment(ctx context.Context, actor policy.Actor, id int) error {
	c, err := models.GetComment(ctx, s.db, id)
	if err != nil {
		return err
	}
	if c.IsDeleted {
		if actor.IsModerator {
			return nil
		}
		return fmt.Errorf("comment %d: %w", id, models.ErrNotFound)
	}
	if !policy.CanPerform(actor, policy.Delete, commentTarget(c)) {
		return s.deny(actor, policy.Delete, "comment", id)
	}
	if err := models.SetCommentDeleted(ctx, s.db, id, true); err != nil {
		return err
	}
	s.log.Info("comment deleted", "comment_id", id, "actor", actor.ID)
	return nil
}

// livePost loads a post and treats a deleted one as absent.
func (s *Service) livePost(ctx context.Context, id int) (*models.Post, error) {
	p, err := models.GetPost(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, fmt.Errorf("post %d: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (s *Service) deny(actor policy.Actor, action policy.Action, kind string, id int) error {
	s.log.Warn("forbidden", "actor", actor.ID, "action", action.String(), "target", kind, "target_id", id)
	return fmt.Errorf("%s %s %d: %w", action, kind, id, models.ErrForbidden)
}

func postTarget(p *models.Post) policy.Target {
	return policy.Target{OwnerID: p.UserID, IsLocked: p.IsLocked, IsDeleted: p.IsDeleted}
}

func commentTarget(c *models.Comment) policy.Target {
	return policy.Target{OwnerID: c.UserID, IsDeleted: c.IsDeleted}
}

func validatePost(title, body string) error {
	switch {
	case title == "":
		return models.Invalid("title", "title is required")
	case len(title) > maxTitleLen:
		return models.Invalid("title", fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	case body == "":
		return models.Invalid("body", "body is required")
	case len(body) > maxPostBodyLen:
		return models.Invalid("body", fmt.Sprintf("body must be at most %d characters", maxPostBodyLen))
	}
	return nil
}

func validateComment(body string) error {
	switch {
	case body == "":
		return models.Invalid("body", "comment body is required")
	case len(body) > maxCommentBodyLen:
		return models.Invalid("body", fmt.Sprintf("comment must be at most %d characters", maxCommentBodyLen))
	}
	return nil
}

