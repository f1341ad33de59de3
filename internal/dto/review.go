package dto

import (
	"encoding/json"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// ReviewRequest carries reviewer feedback for approve/reject actions.
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// ApprovalListQuery mirrors the approval list filters.
type ApprovalListQuery struct {
	Status       string `form:"status"`
	CollegeID    string `form:"collegeId"`
	DepartmentID string `form:"departmentId"`
	Limit        int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

// Filter returns the reviewer-facing filter portion of the query.
func (q ApprovalListQuery) Filter() models.ApprovalFilter {
	return models.ApprovalFilter{Status: q.Status, CollegeID: q.CollegeID, DepartmentID: q.DepartmentID}
}

// CreateChangeRequest is submitted by a college admin editing a published curriculum.
type CreateChangeRequest struct {
	ChangeType models.ChangeType `json:"changeType" validate:"required,change_type"`
	Payload    json.RawMessage   `json:"payload" validate:"required"`
	Message    string            `json:"message" validate:"required,max=2000"`
}

// ExportQuery selects the export format and list filter.
type ExportQuery struct {
	ApprovalListQuery
	Format string `form:"format" validate:"required,oneof=csv pdf"`
}
