package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/logger"
)

const defaultApprovalListLimit = 50

type approvalStore interface {
	List(ctx context.Context, orgID string, query models.ApprovalQuery) ([]models.CurriculumApprovalRequest, error)
	GetByCurriculumID(ctx context.Context, curriculumID string) (*models.CurriculumApprovalRequest, error)
	Statistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error)
	Review(ctx context.Context, review models.CurriculumReview) (*models.CurriculumApprovalRequest, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EventPublisher publishes change events for listeners in other sessions.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

type statsCache interface {
	Lookup(ctx context.Context, orgID string) (*models.ApprovalStatistics, bool)
	Store(ctx context.Context, orgID string, stats *models.ApprovalStatistics)
	Evict(ctx context.Context, orgID string)
}

// ApprovalService implements the curriculum approval track of the record store.
type ApprovalService struct {
	store     approvalStore
	audit     auditLogger
	publisher EventPublisher
	cache     statsCache
	metrics   *MetricsService
	logger    *zap.Logger
	listLimit int
	now       func() time.Time
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalCache caches raw statistics per organization.
func WithApprovalCache(cache statsCache) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.cache = cache
	}
}

// WithApprovalPublisher publishes curricula change events after reviews.
func WithApprovalPublisher(publisher EventPublisher) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.publisher = publisher
	}
}

// WithApprovalMetrics records review counters.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// WithApprovalListLimit overrides the default list size.
func WithApprovalListLimit(limit int) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

// NewApprovalService constructs the service with defaults.
func NewApprovalService(store approvalStore, audit auditLogger, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		store:     store,
		audit:     audit,
		logger:    logger,
		listLimit: defaultApprovalListLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GetApprovalRequests runs a raw store query. The approved-bucket widening is
// applied by callers through models.ApprovalFilter.
func (s *ApprovalService) GetApprovalRequests(ctx context.Context, orgID string, query models.ApprovalQuery) ([]models.CurriculumApprovalRequest, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "organization id is required")
	}
	if query.Status != "" && !query.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if query.Limit <= 0 {
		query.Limit = s.listLimit
	}
	records, err := s.store.List(ctx, orgID, query)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval requests")
	}
	if records == nil {
		records = []models.CurriculumApprovalRequest{}
	}
	return records, nil
}

// ListApprovals applies a reviewer filter, including the approved bucket.
func (s *ApprovalService) ListApprovals(ctx context.Context, orgID string, filter models.ApprovalFilter, limit int) ([]models.CurriculumApprovalRequest, error) {
	query, err := filter.Query(limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval filter")
	}
	records, err := s.GetApprovalRequests(ctx, orgID, query)
	if err != nil {
		return nil, err
	}
	return filter.Retain(records), nil
}

// GetApprovalStatistics returns raw per-status counts; callers display them via Displayed.
func (s *ApprovalService) GetApprovalStatistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error) {
	stats, _, err := s.ApprovalStatistics(ctx, orgID)
	return stats, err
}

// ApprovalStatistics returns raw counts and whether they came from the cache.
func (s *ApprovalService) ApprovalStatistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, bool, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "organization id is required")
	}
	if s.cache != nil {
		if cached, hit := s.cache.Lookup(ctx, orgID); hit {
			return cached, true, nil
		}
	}
	stats, err := s.store.Statistics(ctx, orgID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval statistics")
	}
	if s.cache != nil {
		s.cache.Store(ctx, orgID, stats)
	}
	return stats, false, nil
}

// ApproveCurriculum approves a pending curriculum. Notes are optional.
func (s *ApprovalService) ApproveCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error) {
	return s.review(ctx, curriculumID, models.CurriculumStatusApproved, notes, reviewer)
}

// RejectCurriculum rejects a pending curriculum. Feedback notes are mandatory.
func (s *ApprovalService) RejectCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error) {
	if err := ValidateRejectNotes(notes); err != nil {
		return nil, err
	}
	return s.review(ctx, curriculumID, models.CurriculumStatusRejected, notes, reviewer)
}

func (s *ApprovalService) review(ctx context.Context, curriculumID string, decision models.CurriculumStatus, notes string, reviewer *models.JWTClaims) (result *models.CurriculumApprovalRequest, err error) {
	defer func() { s.metrics.RecordReview("curriculum", string(decision), err) }()

	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(curriculumID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "curriculum id is required")
	}
	current, err := s.store.GetByCurriculumID(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval request")
	}
	if !reviewer.CanAccessOrganization(current.OrganizationID) {
		return nil, appErrors.ErrForbidden
	}
	if !current.Status.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("curriculum already %s", current.Status))
	}

	updated, err := s.store.Review(ctx, models.CurriculumReview{
		CurriculumID: curriculumID,
		Decision:     decision,
		Notes:        notes,
		ReviewerID:   reviewer.UserID,
		ReviewedAt:   s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "curriculum was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}

	if s.cache != nil {
		s.cache.Evict(ctx, updated.OrganizationID)
	}
	action := models.AuditActionCurriculumApprove
	if decision == models.CurriculumStatusRejected {
		action = models.AuditActionCurriculumReject
	}
	oldValues, _ := json.Marshal(map[string]interface{}{"status": current.Status})
	newValues, _ := json.Marshal(map[string]interface{}{"status": updated.Status, "notes": updated.ReviewNotes})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &reviewer.UserID,
		Action:     action,
		Resource:   "curriculum",
		ResourceID: &updated.CurriculumID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
	publishEvent(ctx, s.publisher, s.metrics, s.logger, models.ChangeEvent{
		EventType:      models.ChangeEventUpdate,
		Table:          models.TableCurricula,
		OrganizationID: updated.OrganizationID,
		New:            models.Row{"id": updated.CurriculumID, "status": string(updated.Status)},
		Old:            models.Row{"id": updated.CurriculumID, "status": string(current.Status)},
	})
	logger.WithContext(ctx, s.logger).Info("curriculum reviewed",
		zap.String("curriculum_id", curriculumID),
		zap.String("decision", string(decision)),
		zap.String("reviewer_id", reviewer.UserID))
	return updated, nil
}

// ValidateRejectNotes enforces mandatory feedback for rejections.
func ValidateRejectNotes(notes string) error {
	if strings.TrimSpace(notes) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "feedback notes are required to reject")
	}
	return nil
}

func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = "approval-service"
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func publishEvent(ctx context.Context, publisher EventPublisher, metrics *MetricsService, logger *zap.Logger, event models.ChangeEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish change event",
			zap.String("table", event.Table),
			zap.String("org_id", event.OrganizationID),
			zap.Error(err))
		return
	}
	metrics.RecordEventPublished(event.Table)
}
