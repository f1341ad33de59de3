package console

import (
	"context"
	"time"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

const defaultLoadLimit = 50

// Loader fetches console lists. Every load takes at least MinimumDuration of
// wall-clock time so the loading indicator does not flicker.
type Loader struct {
	backend         Backend
	minimumDuration time.Duration
	limit           int
	now             func() time.Time
}

// NewLoader builds a loader. A zero minimum duration disables padding.
func NewLoader(backend Backend, minimumDuration time.Duration, limit int) *Loader {
	if limit <= 0 {
		limit = defaultLoadLimit
	}
	return &Loader{backend: backend, minimumDuration: minimumDuration, limit: limit, now: time.Now}
}

// LoadApprovalRequests fetches approval requests matching filter. The
// approved filter returns both approved and published records.
func (l *Loader) LoadApprovalRequests(ctx context.Context, orgID string, filter models.ApprovalFilter) ([]models.CurriculumApprovalRequest, error) {
	start := l.now()
	query, err := filter.Query(l.limit)
	if err != nil {
		return nil, err
	}
	records, err := l.backend.GetApprovalRequests(ctx, orgID, query)
	if perr := l.pad(ctx, start); perr != nil {
		return nil, perr
	}
	if err != nil {
		return nil, err
	}
	return filter.Retain(records), nil
}

// LoadChangeRequests fetches every pending change request of the organization.
func (l *Loader) LoadChangeRequests(ctx context.Context, orgID string) ([]models.ChangeRequest, error) {
	start := l.now()
	changes, err := l.backend.GetAllPendingChangesForUniversity(ctx, orgID)
	if perr := l.pad(ctx, start); perr != nil {
		return nil, perr
	}
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// pad waits out the remainder of the minimum duration, returning ctx.Err()
// when the caller goes away first.
func (l *Loader) pad(ctx context.Context, start time.Time) error {
	remaining := l.minimumDuration - l.now().Sub(start)
	if remaining <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
