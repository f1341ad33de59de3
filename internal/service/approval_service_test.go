package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

type approvalStoreStub struct {
	records    []models.CurriculumApprovalRequest
	stats      models.ApprovalStatistics
	lastQuery  models.ApprovalQuery
	listCalls  int
	statsCalls int
	reviews    []models.CurriculumReview
	reviewErr  error
}

func (s *approvalStoreStub) List(ctx context.Context, orgID string, query models.ApprovalQuery) ([]models.CurriculumApprovalRequest, error) {
	s.listCalls++
	s.lastQuery = query
	out := make([]models.CurriculumApprovalRequest, 0)
	for _, r := range s.records {
		if r.OrganizationID != orgID {
			continue
		}
		if query.Status != "" && r.Status != query.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *approvalStoreStub) GetByCurriculumID(ctx context.Context, curriculumID string) (*models.CurriculumApprovalRequest, error) {
	for _, r := range s.records {
		if r.CurriculumID == curriculumID {
			copy := r
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) Statistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error) {
	s.statsCalls++
	stats := s.stats
	return &stats, nil
}

func (s *approvalStoreStub) Review(ctx context.Context, review models.CurriculumReview) (*models.CurriculumApprovalRequest, error) {
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	s.reviews = append(s.reviews, review)
	for i := range s.records {
		if s.records[i].CurriculumID == review.CurriculumID {
			s.records[i].Status = review.Decision
			notes := review.Notes
			s.records[i].ReviewNotes = &notes
			copy := s.records[i]
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

type statsCacheStub struct {
	values  map[string]models.ApprovalStatistics
	evicted []string
}

func (c *statsCacheStub) Lookup(ctx context.Context, orgID string) (*models.ApprovalStatistics, bool) {
	v, ok := c.values[orgID]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (c *statsCacheStub) Store(ctx context.Context, orgID string, stats *models.ApprovalStatistics) {
	c.values[orgID] = *stats
}

func (c *statsCacheStub) Evict(ctx context.Context, orgID string) {
	c.evicted = append(c.evicted, orgID)
	delete(c.values, orgID)
}

func seededApprovalStore() *approvalStoreStub {
	statuses := []models.CurriculumStatus{
		models.CurriculumStatusApproved, models.CurriculumStatusApproved, models.CurriculumStatusApproved,
		models.CurriculumStatusPublished, models.CurriculumStatusPublished,
		models.CurriculumStatusPendingApproval, models.CurriculumStatusRejected, models.CurriculumStatusDraft,
	}
	store := &approvalStoreStub{}
	for i, status := range statuses {
		store.records = append(store.records, models.CurriculumApprovalRequest{
			ID:             "req-" + string(rune('a'+i)),
			CurriculumID:   "cur-" + string(rune('a'+i)),
			OrganizationID: "org-1",
			Status:         status,
		})
	}
	return store
}

func TestApprovalServiceListApprovedBucket(t *testing.T) {
	store := seededApprovalStore()
	svc := NewApprovalService(store, nil, nil)

	records, err := svc.ListApprovals(context.Background(), "org-1", models.ApprovalFilter{Status: "approved"}, 0)
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, models.CurriculumStatus(""), store.lastQuery.Status)
	assert.Equal(t, defaultApprovalListLimit, store.lastQuery.Limit)
	for _, r := range records {
		assert.True(t, models.IsApprovedBucket(r.Status))
	}
}

func TestApprovalServiceListRejectsUnknownStatus(t *testing.T) {
	svc := NewApprovalService(seededApprovalStore(), nil, nil)
	_, err := svc.ListApprovals(context.Background(), "org-1", models.ApprovalFilter{Status: "bogus"}, 0)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestApprovalServiceStatisticsCached(t *testing.T) {
	store := seededApprovalStore()
	store.stats = models.ApprovalStatistics{Total: 8, Approved: 3, Published: 2}
	cache := &statsCacheStub{values: map[string]models.ApprovalStatistics{}}
	svc := NewApprovalService(store, nil, nil, WithApprovalCache(cache))

	first, err := svc.GetApprovalStatistics(context.Background(), "org-1")
	require.NoError(t, err)
	second, err := svc.GetApprovalStatistics(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.statsCalls)
	assert.Equal(t, *first, *second)
	assert.Equal(t, 5, second.Displayed().Approved)
}

func TestApprovalServiceRejectRequiresNotes(t *testing.T) {
	store := seededApprovalStore()
	svc := NewApprovalService(store, nil, nil)

	for _, notes := range []string{"", "   ", "\n\t"} {
		_, err := svc.RejectCurriculum(context.Background(), "cur-f", notes, reviewer("org-1"))
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	}
	assert.Empty(t, store.reviews)
}

func TestApprovalServiceApprovePublishesAndAudits(t *testing.T) {
	store := seededApprovalStore()
	audit := &auditRecorder{}
	publisher := &publisherRecorder{}
	cache := &statsCacheStub{values: map[string]models.ApprovalStatistics{"org-1": {}}}
	svc := NewApprovalService(store, audit, nil,
		WithApprovalPublisher(publisher),
		WithApprovalCache(cache),
		WithApprovalMetrics(NewMetricsService()))

	updated, err := svc.ApproveCurriculum(context.Background(), "cur-f", "", reviewer("org-1"))
	require.NoError(t, err)
	assert.Equal(t, models.CurriculumStatusApproved, updated.Status)
	require.Len(t, store.reviews, 1)
	assert.Equal(t, "rev-1", store.reviews[0].ReviewerID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionCurriculumApprove, audit.logs[0].Action)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.TableCurricula, publisher.events[0].Table)
	assert.Equal(t, "org-1", publisher.events[0].OrganizationID)
	assert.Equal(t, []string{"org-1"}, cache.evicted)
}

func TestApprovalServiceReviewGuards(t *testing.T) {
	store := seededApprovalStore()
	svc := NewApprovalService(store, nil, nil)

	_, err := svc.ApproveCurriculum(context.Background(), "cur-a", "", reviewer("org-1"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code), "already approved")

	_, err = svc.ApproveCurriculum(context.Background(), "cur-f", "", reviewer("org-2"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.ApproveCurriculum(context.Background(), "missing", "", reviewer("org-1"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	store.reviewErr = sql.ErrNoRows
	_, err = svc.RejectCurriculum(context.Background(), "cur-f", "needs work", reviewer("org-1"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code), "lost race")
}
