package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/syllabus-approval-api/internal/dto"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/response"
)

type changeRequestService interface {
	GetAllPendingChangesForUniversity(ctx context.Context, orgID string) ([]models.ChangeRequest, error)
	RequestChange(ctx context.Context, curriculumID string, req dto.CreateChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error)
	ApproveChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error)
	RejectChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error)
}

// ChangeRequestHandler exposes the field-level change track.
type ChangeRequestHandler struct {
	service changeRequestService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(service changeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service}
}

// ListPending godoc
// @Summary List pending change requests of an organization
// @Tags Change Requests
// @Produce json
// @Param orgId path string true "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /orgs/{orgId}/changes [get]
func (h *ChangeRequestHandler) ListPending(c *gin.Context) {
	changes, err := h.service.GetAllPendingChangesForUniversity(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, changes, nil)
}

// Create godoc
// @Summary Propose a change to a published curriculum
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param curriculumId path string true "Curriculum ID"
// @Param payload body dto.CreateChangeRequest true "Change payload"
// @Success 201 {object} response.Envelope
// @Router /curricula/{curriculumId}/changes [post]
func (h *ChangeRequestHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid change request payload"))
		return
	}
	change, err := h.service.RequestChange(c.Request.Context(), c.Param("curriculumId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, change)
}

// Approve godoc
// @Summary Apply a pending change request
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param curriculumId path string true "Curriculum ID"
// @Param changeId path string true "Change request ID"
// @Param payload body dto.ReviewRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Router /curricula/{curriculumId}/changes/{changeId}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindReview(c, &req) {
		return
	}
	change, err := h.service.ApproveChange(c.Request.Context(), c.Param("curriculumId"), c.Param("changeId"), req.Notes, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// Reject godoc
// @Summary Discard a pending change request
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param curriculumId path string true "Curriculum ID"
// @Param changeId path string true "Change request ID"
// @Param payload body dto.ReviewRequest true "Feedback notes"
// @Success 200 {object} response.Envelope
// @Router /curricula/{curriculumId}/changes/{changeId}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindReview(c, &req) {
		return
	}
	change, err := h.service.RejectChange(c.Request.Context(), c.Param("curriculumId"), c.Param("changeId"), req.Notes, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}
