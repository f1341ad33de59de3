package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/syllabus-approval-api/internal/dto"
	"github.com/noah-isme/syllabus-approval-api/internal/middleware"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/response"
)

type approvalService interface {
	ListApprovals(ctx context.Context, orgID string, filter models.ApprovalFilter, limit int) ([]models.CurriculumApprovalRequest, error)
	ApprovalStatistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, bool, error)
	ApproveCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error)
	RejectCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error)
}

// ApprovalHandler exposes the curriculum approval track.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// List godoc
// @Summary List curriculum approval requests
// @Tags Approvals
// @Produce json
// @Param orgId path string true "Organization ID"
// @Param status query string false "Status filter; approved includes published"
// @Param collegeId query string false "College ID"
// @Param departmentId query string false "Department ID"
// @Param limit query int false "Maximum records (1-200)"
// @Success 200 {object} response.Envelope
// @Router /orgs/{orgId}/approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	var query dto.ApprovalListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	if err := validate.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	records, err := h.service.ListApprovals(c.Request.Context(), c.Param("orgId"), query.Filter(), query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, records, nil)
}

// Statistics godoc
// @Summary Raw approval counts per status
// @Tags Approvals
// @Produce json
// @Param orgId path string true "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /orgs/{orgId}/approvals/statistics [get]
func (h *ApprovalHandler) Statistics(c *gin.Context) {
	stats, hit, err := h.service.ApprovalStatistics(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	middleware.SetMeta(c, "displayed", stats.Displayed())
	respondMeta(c, http.StatusOK, stats, nil)
}

// Approve godoc
// @Summary Approve a curriculum
// @Tags Approvals
// @Accept json
// @Produce json
// @Param curriculumId path string true "Curriculum ID"
// @Param payload body dto.ReviewRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curricula/{curriculumId}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindReview(c, &req) {
		return
	}
	record, err := h.service.ApproveCurriculum(c.Request.Context(), c.Param("curriculumId"), req.Notes, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Reject godoc
// @Summary Reject a curriculum with feedback
// @Tags Approvals
// @Accept json
// @Produce json
// @Param curriculumId path string true "Curriculum ID"
// @Param payload body dto.ReviewRequest true "Feedback notes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curricula/{curriculumId}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindReview(c, &req) {
		return
	}
	record, err := h.service.RejectCurriculum(c.Request.Context(), c.Param("curriculumId"), req.Notes, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
