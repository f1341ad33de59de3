package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
	"github.com/noah-isme/syllabus-approval-api/pkg/storage"
)

type exportListerStub struct {
	records []models.CurriculumApprovalRequest
}

func (s exportListerStub) ListApprovals(_ context.Context, _ string, filter models.ApprovalFilter, _ int) ([]models.CurriculumApprovalRequest, error) {
	return filter.Retain(s.records), nil
}

func newExportHandlerForTest(t *testing.T) *ExportHandler {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	lister := exportListerStub{records: []models.CurriculumApprovalRequest{
		{CurriculumID: "cur-1", OrganizationID: "org-1", CourseName: "Algorithms", CourseCode: "CS201", Status: models.CurriculumStatusPublished, SubmittedAt: time.Now()},
		{CurriculumID: "cur-2", OrganizationID: "org-1", CourseName: "Networks", CourseCode: "CS301", Status: models.CurriculumStatusPendingApproval, SubmittedAt: time.Now()},
	}}
	svc := service.NewExportService(lister, store, storage.NewSignedURLSigner("secret", time.Hour), nil,
		service.ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop())
	return NewExportHandler(svc)
}

func TestExportHandlerExportAndDownload(t *testing.T) {
	h := newExportHandlerForTest(t)
	c, rec := testContext(http.MethodGet, "/orgs/org-1/approvals/export?format=csv&status=approved", "", reviewer("org-1"),
		gin.Params{{Key: "orgId", Value: "org-1"}})

	h.Export(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result models.ExportResult
	decodeData(t, rec, &result)
	assert.Equal(t, 1, result.Rows)
	token := strings.TrimPrefix(result.URL, "/api/v1/exports/")

	c, rec = testContext(http.MethodGet, result.URL, "", nil, gin.Params{{Key: "token", Value: token}})
	h.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "Algorithms")
	assert.NotContains(t, rec.Body.String(), "Networks")
}

func TestExportHandlerRejectsUnknownFormat(t *testing.T) {
	h := newExportHandlerForTest(t)
	c, rec := testContext(http.MethodGet, "/orgs/org-1/approvals/export?format=xlsx", "", reviewer("org-1"),
		gin.Params{{Key: "orgId", Value: "org-1"}})

	h.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerDownloadInvalidToken(t *testing.T) {
	h := newExportHandlerForTest(t)
	c, rec := testContext(http.MethodGet, "/exports/forged", "", nil, gin.Params{{Key: "token", Value: "forged"}})

	h.Download(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
