package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const reportColumns = `id, post_id, comment_id, reporter_id, reason, status, created_at, resolved_at, resolved_by`

func CreateReport(ctx context.Context, q Querier, r *Report) error {
	var postID, commentID sql.NullInt64
	switch r.TargetType {
	case TargetPost:
		postID = sql.NullInt64{Int64: int64(r.TargetID), Valid: true}
	case TargetComment:
		commentID = sql.NullInt64{Int64: int64(r.TargetID), Valid: true}
	default:
		return Invalid("target_type", fmt.Sprintf("unknown target type %q", r.TargetType))
	}
	if r.Status == "" {
		r.Status = ReportOpen
	}

	res, err := q.ExecContext(ctx, `INSERT INTO reports (post_id, comment_id, reporter_id, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, postID, commentID, r.ReporterID, r.Reason, r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get report id: %w", err)
	}
	r.ID = int(id)
	return nil
}

func GetReport(ctx context.Context, q Querier, id int) (*Report, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", id, err)
	}
	return r, nil
}

// ListReports returns reports oldest first. An empty status lists all.
func ListReports(ctx context.Context, q Querier, status ReportStatus) ([]Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// ResolveReport moves an open report to resolved. It reports false when the
// report was already resolved; status never moves back to open.
func ResolveReport(ctx context.Context, q Querier, id, resolvedBy int, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE reports SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = ?`, ReportResolved, at, resolvedBy, id, ReportOpen)
	if err != nil {
		return false, fmt.Errorf("resolve report %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanReport(row scanner) (*Report, error) {
	var r Report
	var postID, commentID, resolvedBy sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &postID, &commentID, &r.ReporterID, &r.Reason, &r.Status, &r.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if postID.Valid {
		r.TargetType, r.TargetID = TargetPost, int(postID.Int64)
	} else {
		r.TargetType, r.TargetID = TargetComment, int(commentID.Int64)
	}
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		by := int(resolvedBy.Int64)
		r.ResolvedBy = &by
	}
	return &r, nil
}
