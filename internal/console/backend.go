package console

import (
	"context"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
)

// Backend is the approval record store as seen by the console.
type Backend interface {
	GetApprovalRequests(ctx context.Context, orgID string, query models.ApprovalQuery) ([]models.CurriculumApprovalRequest, error)
	GetApprovalStatistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error)
	ApproveCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error)
	RejectCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error)
	GetAllPendingChangesForUniversity(ctx context.Context, orgID string) ([]models.ChangeRequest, error)
	ApproveChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error)
	RejectChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error)
	GetCurriculumDetail(ctx context.Context, curriculumID string, actor *models.JWTClaims) (*models.CurriculumDetail, error)
}

// ServiceBackend serves the console from the in-process services.
type ServiceBackend struct {
	*service.ApprovalService
	*service.ChangeRequestService
	*service.CurriculumService
}

var _ Backend = ServiceBackend{}

// NewServiceBackend composes the services into a Backend.
func NewServiceBackend(approvals *service.ApprovalService, changes *service.ChangeRequestService, curricula *service.CurriculumService) ServiceBackend {
	return ServiceBackend{ApprovalService: approvals, ChangeRequestService: changes, CurriculumService: curricula}
}
