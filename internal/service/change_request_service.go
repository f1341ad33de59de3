package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/dto"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/repository"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/logger"
)

type changeStore interface {
	ListPending(ctx context.Context, orgID string) ([]models.ChangeRequest, error)
	GetByID(ctx context.Context, curriculumID, changeID string) (*models.ChangeRequest, error)
	Create(ctx context.Context, change *models.ChangeRequest) (bool, error)
	Resolve(ctx context.Context, params repository.ResolveChangeParams, apply repository.ApplyFunc) (*repository.ResolveResult, error)
}

type curriculumHeaderReader interface {
	GetByID(ctx context.Context, id string) (*models.Curriculum, error)
}

// ChangeRequestService implements the field-level change track of the record store.
type ChangeRequestService struct {
	store       changeStore
	curricula   curriculumHeaderReader
	audit       auditLogger
	publisher   EventPublisher
	metrics     *MetricsService
	appliers    map[models.ChangeType]ChangeApplier
	validator   *validator.Validate
	invalidator statsInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

type statsInvalidator interface {
	Evict(ctx context.Context, orgID string)
}

// ChangeRequestServiceOption configures the service.
type ChangeRequestServiceOption func(*ChangeRequestService)

// WithChangeAppliers overrides appliers keyed by change type.
func WithChangeAppliers(appliers map[models.ChangeType]ChangeApplier) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		for k, v := range appliers {
			s.appliers[k] = v
		}
	}
}

// WithChangePublisher publishes curricula and approval_required events.
func WithChangePublisher(publisher EventPublisher) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		s.publisher = publisher
	}
}

// WithChangeMetrics records review counters.
func WithChangeMetrics(metrics *MetricsService) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		s.metrics = metrics
	}
}

// WithChangeStatsInvalidator drops cached statistics after a resolution.
func WithChangeStatsInvalidator(cache statsInvalidator) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		s.invalidator = cache
	}
}

// NewChangeRequestService constructs the service with the default appliers.
func NewChangeRequestService(store changeStore, curricula curriculumHeaderReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...ChangeRequestServiceOption) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	_ = validate.RegisterValidation("change_type", func(fl validator.FieldLevel) bool {
		return models.ChangeType(fl.Field().String()).Valid()
	})
	svc := &ChangeRequestService{
		store:     store,
		curricula: curricula,
		audit:     audit,
		appliers:  DefaultChangeAppliers(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GetAllPendingChangesForUniversity lists pending change requests of an organization.
func (s *ChangeRequestService) GetAllPendingChangesForUniversity(ctx context.Context, orgID string) ([]models.ChangeRequest, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "organization id is required")
	}
	changes, err := s.store.ListPending(ctx, orgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change requests")
	}
	if changes == nil {
		changes = []models.ChangeRequest{}
	}
	return changes, nil
}

// RequestChange records a college admin's proposed edit to a published curriculum.
func (s *ChangeRequestService) RequestChange(ctx context.Context, curriculumID string, req dto.CreateChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change request payload")
	}
	var payload models.ChangePayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payload must be a JSON object")
	}
	if err := validatePayloadShape(req.ChangeType, payload); err != nil {
		return nil, err
	}

	curriculum, err := s.curricula.GetByID(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	if !actor.CanAccessOrganization(curriculum.OrganizationID) {
		return nil, appErrors.ErrForbidden
	}
	if !models.IsApprovedBucket(curriculum.Status) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "change requests target published curricula only")
	}

	change := &models.ChangeRequest{
		CurriculumID:   curriculum.ID,
		OrganizationID: curriculum.OrganizationID,
		CourseName:     curriculum.CourseName,
		ChangeType:     req.ChangeType,
		Payload:        append(json.RawMessage(nil), req.Payload...),
		RequestedBy:    actor.UserID,
		RequesterName:  actor.FullName,
		Message:        strings.TrimSpace(req.Message),
		RequestedAt:    s.now().UTC(),
		Status:         models.ChangeStatusPending,
	}
	flipped, err := s.store.Create(ctx, change)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}

	publishEvent(ctx, s.publisher, s.metrics, s.logger, models.ChangeEvent{
		EventType:      models.ChangeEventInsert,
		Table:          models.TableApprovalRequired,
		OrganizationID: change.OrganizationID,
		New: models.Row{
			"id":            change.ID,
			"curriculum_id": change.CurriculumID,
			"change_type":   string(change.ChangeType),
		},
	})
	if flipped {
		publishEvent(ctx, s.publisher, s.metrics, s.logger, pendingFlagEvent(change.OrganizationID, change.CurriculumID, false, true))
	}
	return change, nil
}

// ApproveChange applies the change to the curriculum and marks it applied.
func (s *ChangeRequestService) ApproveChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error) {
	return s.resolve(ctx, curriculumID, changeID, models.ChangeStatusApplied, notes, reviewer)
}

// RejectChange discards the change. Feedback notes are mandatory.
func (s *ChangeRequestService) RejectChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := ValidateRejectNotes(notes); err != nil {
		return nil, err
	}
	return s.resolve(ctx, curriculumID, changeID, models.ChangeStatusDiscarded, notes, reviewer)
}

func (s *ChangeRequestService) resolve(ctx context.Context, curriculumID, changeID string, status models.ChangeStatus, notes string, reviewer *models.JWTClaims) (result *models.ChangeRequest, err error) {
	defer func() { s.metrics.RecordReview("change", string(status), err) }()

	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	change, err := s.store.GetByID(ctx, curriculumID, changeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if !reviewer.CanAccessOrganization(change.OrganizationID) {
		return nil, appErrors.ErrForbidden
	}
	if change.Status != models.ChangeStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("change request already %s", change.Status))
	}

	var apply repository.ApplyFunc
	if status == models.ChangeStatusApplied {
		applier := s.appliers[change.ChangeType]
		if applier == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("unsupported change type: %s", change.ChangeType))
		}
		payload, err := change.DecodePayload()
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "change payload is not valid JSON")
		}
		apply = func(ctx context.Context, mutator repository.CurriculumMutator) error {
			return applier.Apply(ctx, mutator, change, payload)
		}
	}

	outcome, err := s.store.Resolve(ctx, repository.ResolveChangeParams{
		CurriculumID: curriculumID,
		ChangeID:     changeID,
		Status:       status,
		ReviewedBy:   reviewer.UserID,
		ReviewedAt:   s.now().UTC(),
		Notes:        notes,
	}, apply)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change request was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve change request")
	}

	if s.invalidator != nil {
		s.invalidator.Evict(ctx, change.OrganizationID)
	}
	action := models.AuditActionChangeApply
	if status == models.ChangeStatusDiscarded {
		action = models.AuditActionChangeDiscard
	}
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &reviewer.UserID,
		Action:     action,
		Resource:   "change_request",
		ResourceID: &outcome.Change.ID,
		NewValues:  outcome.Change.Payload,
	})
	publishEvent(ctx, s.publisher, s.metrics, s.logger,
		pendingFlagEvent(change.OrganizationID, curriculumID, outcome.HadPending, outcome.HasPending))
	logger.WithContext(ctx, s.logger).Info("change request resolved",
		zap.String("change_id", changeID),
		zap.String("curriculum_id", curriculumID),
		zap.String("status", string(status)),
		zap.String("reviewer_id", reviewer.UserID))
	resolved := outcome.Change
	return &resolved, nil
}

func pendingFlagEvent(orgID, curriculumID string, had, has bool) models.ChangeEvent {
	return models.ChangeEvent{
		EventType:      models.ChangeEventUpdate,
		Table:          models.TableCurricula,
		OrganizationID: orgID,
		New:            models.Row{"id": curriculumID, "has_pending_changes": has},
		Old:            models.Row{"id": curriculumID, "has_pending_changes": had},
	}
}

func validatePayloadShape(changeType models.ChangeType, payload models.ChangePayload) error {
	switch changeType.Kind() {
	case models.ChangeKindAdd, models.ChangeKindDelete:
		if len(payload.Data) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s payload requires data", changeType))
		}
	case models.ChangeKindEdit:
		if len(payload.After) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s payload requires before and after", changeType))
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported change type")
	}
	return nil
}
