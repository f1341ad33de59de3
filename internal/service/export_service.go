package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/export"
	"github.com/noah-isme/syllabus-approval-api/pkg/storage"
)

const exportRowLimit = 200

type approvalLister interface {
	ListApprovals(ctx context.Context, orgID string, filter models.ApprovalFilter, limit int) ([]models.CurriculumApprovalRequest, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders approval lists to CSV or PDF and serves them through signed URLs.
type ExportService struct {
	approvals approvalLister
	storage   fileStorage
	renderers map[models.ExportFormat]datasetRenderer
	signer    *storage.SignedURLSigner
	audit     auditLogger
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(approvals approvalLister, store fileStorage, signer *storage.SignedURLSigner, audit auditLogger, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		approvals: approvals,
		storage:   store,
		renderers: map[models.ExportFormat]datasetRenderer{
			models.ExportFormatCSV: &export.CSVExporter{WithTitle: true},
			models.ExportFormatPDF: export.NewPDFExporter(),
		},
		signer: signer,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ExportApprovals renders the filtered approval list of an organization.
func (s *ExportService) ExportApprovals(ctx context.Context, orgID string, filter models.ApprovalFilter, format models.ExportFormat, actor *models.JWTClaims) (*models.ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.CanAccessOrganization(orgID) {
		return nil, appErrors.ErrForbidden
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	records, err := s.approvals.ListApprovals(ctx, orgID, filter, exportRowLimit)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(approvalDataset(orgID, filter, records))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	exportID := uuid.NewString()
	filename := fmt.Sprintf("%s/approvals_%s_%s.%s", sanitizeFilename(orgID), s.now().UTC().Format("20060102_150405"), exportID[:8], format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, grant, err := s.signer.Sign(storage.DownloadGrant{ExportID: exportID, OrganizationID: orgID, Path: relPath})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	filterJSON, _ := json.Marshal(filter)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionExport,
		Resource:   "approvals",
		ResourceID: &orgID,
		NewValues:  filterJSON,
	})
	return &models.ExportResult{
		ID:        exportID,
		Format:    format,
		Rows:      len(records),
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: grant.ExpiresAt,
	}, nil
}

// Download validates a signed token and opens the stored file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	grant, err := s.signer.Verify(token, false)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export link expired")
	case err != nil:
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export link invalid")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, grant.Path, nil
}

// ContentType returns the MIME type for a stored export name.
func (s *ExportService) ContentType(relPath string) string {
	for format, renderer := range s.renderers {
		if strings.HasSuffix(relPath, "."+string(format)) {
			return renderer.ContentType()
		}
	}
	return "application/octet-stream"
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

func approvalDataset(orgID string, filter models.ApprovalFilter, records []models.CurriculumApprovalRequest) export.Dataset {
	headers := []string{"Course", "Code", "College", "Department", "Requested By", "Submitted At", "Status"}
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"Course":       r.CourseName,
			"Code":         r.CourseCode,
			"College":      r.CollegeName,
			"Department":   r.DepartmentName,
			"Requested By": r.RequesterName,
			"Submitted At": r.SubmittedAt.UTC().Format("2006-01-02 15:04"),
			"Status":       string(r.Status),
		})
	}
	title := fmt.Sprintf("Curriculum approvals %s", orgID)
	if filter.Status != "" {
		title = fmt.Sprintf("%s (%s)", title, filter.Status)
	}
	return export.Dataset{Title: title, Headers: headers, Rows: rows}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
