package models

import "time"

// ExportFormat enumerates supported approval list export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult describes a rendered export available for download.
type ExportResult struct {
	ID        string       `json:"id"`
	Format    ExportFormat `json:"format"`
	Rows      int          `json:"rows"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expiresAt"`
}
