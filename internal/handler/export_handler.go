package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/syllabus-approval-api/internal/dto"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/response"
)

type exportService interface {
	ExportApprovals(ctx context.Context, orgID string, filter models.ApprovalFilter, format models.ExportFormat, actor *models.JWTClaims) (*models.ExportResult, error)
	Download(token string) (*os.File, string, error)
	ContentType(relPath string) string
}

// ExportHandler renders approval lists and serves the signed download links.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Export godoc
// @Summary Export the filtered approval list
// @Tags Exports
// @Produce json
// @Param orgId path string true "Organization ID"
// @Param format query string true "csv or pdf"
// @Param status query string false "Status filter"
// @Success 201 {object} response.Envelope
// @Router /orgs/{orgId}/approvals/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	if err := validate.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf"))
		return
	}
	result, err := h.service.ExportApprovals(c.Request.Context(), c.Param("orgId"), query.Filter(), models.ExportFormat(query.Format), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, relPath, err := h.service.Download(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)))
	c.DataFromReader(http.StatusOK, info.Size(), h.service.ContentType(relPath), file, nil)
}
