package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

const approvalColumns = `id, curriculum_id, organization_id, course_name, course_code, college_id, college_name,
       department_id, department_name, requested_by, requester_name, submitted_at, status,
       review_notes, reviewed_by, reviewed_at`

// ApprovalRepository persists curriculum approval requests.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// List returns approval requests of one organization, latest submissions first.
func (r *ApprovalRepository) List(ctx context.Context, orgID string, query models.ApprovalQuery) ([]models.CurriculumApprovalRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString("SELECT " + approvalColumns + " FROM approval_requests")

	args = append(args, orgID)
	conditions := []string{fmt.Sprintf("organization_id = $%d", len(args))}
	if query.Status != "" {
		args = append(args, query.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if query.CollegeID != "" {
		args = append(args, query.CollegeID)
		conditions = append(conditions, fmt.Sprintf("college_id = $%d", len(args)))
	}
	if query.DepartmentID != "" {
		args = append(args, query.DepartmentID)
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)))
	}
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var requests []models.CurriculumApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return requests, nil
}

// GetByCurriculumID returns the most recent approval request for a curriculum.
func (r *ApprovalRepository) GetByCurriculumID(ctx context.Context, curriculumID string) (*models.CurriculumApprovalRequest, error) {
	query := "SELECT " + approvalColumns + ` FROM approval_requests
	WHERE curriculum_id = $1 ORDER BY submitted_at DESC LIMIT 1`
	var request models.CurriculumApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, curriculumID); err != nil {
		return nil, err
	}
	return &request, nil
}

// Statistics returns raw per-status counts for one organization.
func (r *ApprovalRepository) Statistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error) {
	const query = `SELECT
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status IN ('submitted', 'pending_approval')) AS pending,
       COUNT(*) FILTER (WHERE status = 'approved') AS approved,
       COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
       COUNT(*) FILTER (WHERE status = 'published') AS published
	FROM approval_requests WHERE organization_id = $1`
	var stats models.ApprovalStatistics
	if err := r.db.GetContext(ctx, &stats, query, orgID); err != nil {
		return nil, fmt.Errorf("approval statistics: %w", err)
	}
	return &stats, nil
}

// Review records a decision on the pending request of a curriculum and moves
// the curriculum along: approved publishes it, rejected hands it back. The update only matches reviewable rows,
// so a concurrent review of the same record yields sql.ErrNoRows.
func (r *ApprovalRepository) Review(ctx context.Context, review models.CurriculumReview) (*models.CurriculumApprovalRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin review tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `UPDATE approval_requests
	SET status = $1, review_notes = $2, reviewed_by = $3, reviewed_at = $4
	WHERE curriculum_id = $5 AND status IN ('submitted', 'pending_approval')
	RETURNING ` + approvalColumns
	var updated models.CurriculumApprovalRequest
	if err := tx.GetContext(ctx, &updated, query,
		review.Decision,
		nullableString(review.Notes),
		review.ReviewerID,
		review.ReviewedAt,
		review.CurriculumID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update approval request: %w", err)
	}

	curriculumStatus := review.Decision
	if curriculumStatus == models.CurriculumStatusApproved {
		curriculumStatus = models.CurriculumStatusPublished
	}
	if _, err := tx.ExecContext(ctx, `UPDATE curricula SET status = $1, updated_at = $2 WHERE id = $3`,
		curriculumStatus, review.ReviewedAt, review.CurriculumID); err != nil {
		return nil, fmt.Errorf("update curriculum status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review tx: %w", err)
	}
	return &updated, nil
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
