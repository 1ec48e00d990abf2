// Package moderation implements reporting, report resolution, post locking
// and restoration of soft-deleted content.
//
// Every moderator-only operation consults the authorization policy before it
// looks anything up, so an ordinary member always gets ErrForbidden rather
// than a not-found result.
package moderation

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

const maxReasonLen = 500

type Engine struct {
	db    *sql.DB
	clock clock.Clock
	log   *slog.Logger
}

func NewEngine(db *sql.DB, c clock.Clock, log *slog.Logger) *Engine {
	return &Engine{db: db, clock: clock.OrReal(c), log: logging.OrDiscard(log)}
}

// Report files an open report against a post or comment. Any account may
// report, including the author. Deleted targets are absent to members.
func (e *Engine) Report(ctx context.Context, actor policy.Actor, tt models.TargetType, targetID int, reason string) (*models.Report, error) {
	reason = strings.TrimSpace(reason)
	switch {
	case reason == "":
		return nil, models.Invalid("reason", "reason is required")
	case len(reason) > maxReasonLen:
		return nil, models.Invalid("reason", fmt.Sprintf("reason must be at most %d characters", maxReasonLen))
	}

	deleted, err := e.targetDeleted(ctx, tt, targetID)
	if err != nil {
		return nil, err
	}
	if deleted && !actor.IsModerator {
		return nil, fmt.Errorf("%s %d: %w", tt, targetID, models.ErrNotFound)
	}

	r := &models.Report{
		TargetType: tt,
		TargetID:   targetID,
		ReporterID: actor.ID,
		Reason:     reason,
		Status:     models.ReportOpen,
		CreatedAt:  e.clock.Now(),
	}
	if err := models.CreateReport(ctx, e.db, r); err != nil {
		return nil, err
	}
	e.log.Info("report filed", "report_id", r.ID, "target", tt, "target_id", targetID, "actor", actor.ID)
	return r, nil
}

// Resolve marks a report resolved. Resolving an already resolved report
// succeeds without changing who resolved it or when.
func (e *Engine) Resolve(ctx context.Context, actor policy.Actor, reportID int) (*models.Report, error) {
	if err := e.authorize(actor, policy.Resolve, "report", reportID); err != nil {
		return nil, err
	}
	changed, err := models.ResolveReport(ctx, e.db, reportID, actor.ID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	r, err := models.GetReport(ctx, e.db, reportID)
	if err != nil {
		return nil, err
	}
	if changed {
		e.log.Info("report resolved", "report_id", reportID, "actor", actor.ID)
	} else {
		e.log.Debug("report already resolved", "report_id", reportID, "actor", actor.ID)
	}
	return r, nil
}

// ListReports returns reports in the given status, or all of them when
// status is empty.
func (e *Engine) ListReports(ctx context.Context, actor policy.Actor, status models.ReportStatus) ([]models.Report, error) {
	if err := e.authorize(actor, policy.Resolve, "report", 0); err != nil {
		return nil, err
	}
	return models.ListReports(ctx, e.db, status)
}

// ToggleLock flips a post's lock flag and returns the new state. Deleted
// posts can be locked and unlocked too.
func (e *Engine) ToggleLock(ctx context.Context, actor policy.Actor, postID int) (bool, error) {
	if err := e.authorize(actor, policy.Lock, "post", postID); err != nil {
		return false, err
	}
	locked, err := models.TogglePostLocked(ctx, e.db, postID)
	if err != nil {
		return false, err
	}
	e.log.Info("post lock toggled", "post_id", postID, "locked", locked, "actor", actor.ID)
	return locked, nil
}

// SetLocked sets a post's lock flag. Setting the current value is a no-op.
func (e *Engine) SetLocked(ctx context.Context, actor policy.Actor, postID int, locked bool) error {
	if err := e.authorize(actor, policy.Lock, "post", postID); err != nil {
		return err
	}
	if err := models.SetPostLocked(ctx, e.db, postID, locked); err != nil {
		return err
	}
	e.log.Info("post lock set", "post_id", postID, "locked", locked, "actor", actor.ID)
	return nil
}

// Restore clears the deleted flag on a post or comment. Restoring active
// content leaves it unchanged and returns nil.
func (e *Engine) Restore(ctx context.Context, actor policy.Actor, tt models.TargetType, targetID int) error {
	if err := e.authorize(actor, policy.Restore, string(tt), targetID); err != nil {
		return err
	}
	deleted, err := e.targetDeleted(ctx, tt, targetID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	switch tt {
	case models.TargetPost:
		err = models.SetPostDeleted(ctx, e.db, targetID, false)
	case models.TargetComment:
		err = models.SetCommentDeleted(ctx, e.db, targetID, false)
	}
	if err != nil {
		return err
	}
	e.log.Info("content restored", "target", tt, "target_id", targetID, "actor", actor.ID)
	return nil
}

// authorize checks a moderator-only action. The target's ownership and state
// play no part in these decisions, so no lookup is needed first.
func (e *Engine) authorize(actor policy.Actor, action policy.Action, kind string, id int) error {
	if policy.CanPerform(actor, action, policy.Target{}) {
		return nil
	}
	e.log.Warn("forbidden", "actor", actor.ID, "action", action.String(), "target", kind, "target_id", id)
	return fmt.Errorf("%s %s %d: %w", action, kind, id, models.ErrForbidden)
}

func (e *Engine) targetDeleted(ctx context.Context, tt models.TargetType, id int) (bool, error) {
	switch tt {
	case models.TargetPost:
		p, err := models.GetPost(ctx, e.db, id)
		if err != nil {
			return false, err
		}
		return p.IsDeleted, nil
	case models.TargetComment:
		c, err := models.GetComment(ctx, e.db, id)
		if err != nil {
			return false, err
		}
		return c.IsDeleted, nil
	}
	return false, models.Invalid("target_type", fmt.Sprintf("unknown target type %q", tt))
}
