package dto

import "github.com/noah-isme/syllabus-approval-api/internal/models"

// CreateSessionRequest opens a reviewer console on one organization.
type CreateSessionRequest struct {
	OrgID string `json:"orgId" validate:"required"`
}

// ViewActionRequest dispatches a view-state transition.
type ViewActionRequest struct {
	Action       string                `json:"action" validate:"required,oneof=select_tab set_filter set_search set_page open_detail close_detail switch_org"`
	Tab          string                `json:"tab,omitempty"`
	Filter       models.ApprovalFilter `json:"filter,omitempty"`
	Search       string                `json:"search,omitempty"`
	Page         int                   `json:"page,omitempty"`
	CurriculumID string                `json:"curriculumId,omitempty"`
	OrgID        string                `json:"orgId,omitempty"`
}
