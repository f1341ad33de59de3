package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

type curriculumDetailReader interface {
	GetDetail(ctx context.Context, id string) (*models.CurriculumDetail, error)
}

// CurriculumService serves the read-only curriculum detail view.
type CurriculumService struct {
	repo   curriculumDetailReader
	logger *zap.Logger
}

// NewCurriculumService constructs the service.
func NewCurriculumService(repo curriculumDetailReader, logger *zap.Logger) *CurriculumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurriculumService{repo: repo, logger: logger}
}

// GetCurriculumDetail loads a curriculum with its units, outcomes and assessment mappings.
func (s *CurriculumService) GetCurriculumDetail(ctx context.Context, curriculumID string, actor *models.JWTClaims) (*models.CurriculumDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(curriculumID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "curriculum id is required")
	}
	detail, err := s.repo.GetDetail(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum detail")
	}
	if !actor.CanAccessOrganization(detail.OrganizationID) {
		return nil, appErrors.ErrForbidden
	}
	return detail, nil
}
