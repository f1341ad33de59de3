package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/pkg/response"
)

type curriculumService interface {
	GetCurriculumDetail(ctx context.Context, curriculumID string, actor *models.JWTClaims) (*models.CurriculumDetail, error)
}

// CurriculumHandler serves curriculum detail.
type CurriculumHandler struct {
	service curriculumService
}

// NewCurriculumHandler constructs the handler.
func NewCurriculumHandler(service curriculumService) *CurriculumHandler {
	return &CurriculumHandler{service: service}
}

// Detail godoc
// @Summary Curriculum with units, outcomes and assessment mappings
// @Tags Curricula
// @Produce json
// @Param curriculumId path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Router /curricula/{curriculumId} [get]
func (h *CurriculumHandler) Detail(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	detail, err := h.service.GetCurriculumDetail(c.Request.Context(), c.Param("curriculumId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
