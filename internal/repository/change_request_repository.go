package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

const changeRequestColumns = `id, curriculum_id, organization_id, course_name, change_type, payload, requested_by,
       requester_name, message, requested_at, status, review_notes, reviewed_by, reviewed_at`

// ChangeRequestRepository persists change requests against published curricula.
type ChangeRequestRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db, now: time.Now}
}

// ListPending returns pending change requests of one organization, newest first.
func (r *ChangeRequestRepository) ListPending(ctx context.Context, orgID string) ([]models.ChangeRequest, error) {
	query := "SELECT " + changeRequestColumns + ` FROM change_requests
	WHERE organization_id = $1 AND status = $2 ORDER BY requested_at DESC`
	var changes []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &changes, query, orgID, models.ChangeStatusPending); err != nil {
		return nil, fmt.Errorf("list pending change requests: %w", err)
	}
	return changes, nil
}

// GetByID fetches a change request scoped to its curriculum.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, curriculumID, changeID string) (*models.ChangeRequest, error) {
	query := "SELECT " + changeRequestColumns + " FROM change_requests WHERE id = $1 AND curriculum_id = $2"
	var change models.ChangeRequest
	if err := r.db.GetContext(ctx, &change, query, changeID, curriculumID); err != nil {
		return nil, err
	}
	return &change, nil
}

// Create inserts a pending change request and flags the curriculum as having pending changes.
// It reports whether the flag flipped from false to true.
func (r *ChangeRequestRepository) Create(ctx context.Context, change *models.ChangeRequest) (bool, error) {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.Status == "" {
		change.Status = models.ChangeStatusPending
	}
	if change.RequestedAt.IsZero() {
		change.RequestedAt = r.now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin change request tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var hadPending bool
	if err := tx.GetContext(ctx, &hadPending,
		`SELECT has_pending_changes FROM curricula WHERE id = $1 FOR UPDATE`, change.CurriculumID); err != nil {
		return false, err
	}

	const insert = `INSERT INTO change_requests
	(id, curriculum_id, organization_id, course_name, change_type, payload, requested_by, requester_name, message, requested_at, status)
	VALUES (:id, :curriculum_id, :organization_id, :course_name, :change_type, :payload, :requested_by, :requester_name, :message, :requested_at, :status)`
	if _, err := tx.NamedExecContext(ctx, insert, change); err != nil {
		return false, fmt.Errorf("create change request: %w", err)
	}
	if !hadPending {
		if _, err := tx.ExecContext(ctx, `UPDATE curricula SET has_pending_changes = TRUE WHERE id = $1`, change.CurriculumID); err != nil {
			return false, fmt.Errorf("flag pending changes: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit change request tx: %w", err)
	}
	return !hadPending, nil
}

// ResolveChangeParams groups the review outcome of a change request.
type ResolveChangeParams struct {
	CurriculumID string
	ChangeID     string
	Status       models.ChangeStatus
	ReviewedBy   string
	ReviewedAt   time.Time
	Notes        string
}

// ResolveResult reports the curriculum flag transition caused by a resolution.
type ResolveResult struct {
	Change     models.ChangeRequest
	HadPending bool
	HasPending bool
}

// ApplyFunc mutates the curriculum inside the resolving transaction.
type ApplyFunc func(ctx context.Context, mutator CurriculumMutator) error

// Resolve marks a pending change request applied or discarded. When apply is
// non-nil it runs in the same transaction, after the status update, so a
// failed application leaves the request pending. The curriculum's
// has_pending_changes flag is recomputed before commit. A request that is no
// longer pending yields sql.ErrNoRows.
func (r *ChangeRequestRepository) Resolve(ctx context.Context, params ResolveChangeParams, apply ApplyFunc) (*ResolveResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var hadPending bool
	if err := tx.GetContext(ctx, &hadPending,
		`SELECT has_pending_changes FROM curricula WHERE id = $1 FOR UPDATE`, params.CurriculumID); err != nil {
		return nil, err
	}

	query := `UPDATE change_requests
	SET status = $1, review_notes = $2, reviewed_by = $3, reviewed_at = $4
	WHERE id = $5 AND curriculum_id = $6 AND status = 'pending'
	RETURNING ` + changeRequestColumns
	var change models.ChangeRequest
	if err := tx.GetContext(ctx, &change, query,
		params.Status,
		nullableString(params.Notes),
		params.ReviewedBy,
		params.ReviewedAt,
		params.ChangeID,
		params.CurriculumID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update change request: %w", err)
	}

	if apply != nil {
		if err := apply(ctx, &txCurriculumMutator{tx: tx, now: r.now}); err != nil {
			return nil, err
		}
	}

	var hasPending bool
	if err := tx.GetContext(ctx, &hasPending,
		`SELECT EXISTS (SELECT 1 FROM change_requests WHERE curriculum_id = $1 AND status = 'pending')`,
		params.CurriculumID); err != nil {
		return nil, fmt.Errorf("count pending change requests: %w", err)
	}
	if hasPending != hadPending {
		if _, err := tx.ExecContext(ctx, `UPDATE curricula SET has_pending_changes = $1 WHERE id = $2`,
			hasPending, params.CurriculumID); err != nil {
			return nil, fmt.Errorf("update pending changes flag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve tx: %w", err)
	}
	return &ResolveResult{Change: change, HadPending: hadPending, HasPending: hasPending}, nil
}
