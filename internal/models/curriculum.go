package models

import (
	"fmt"
	"strings"
	"time"
)

// CurriculumStatus enumerates the lifecycle of a submitted curriculum.
type CurriculumStatus string

const (
	CurriculumStatusDraft           CurriculumStatus = "draft"
	CurriculumStatusSubmitted       CurriculumStatus = "submitted"
	CurriculumStatusPendingApproval CurriculumStatus = "pending_approval"
	CurriculumStatusApproved        CurriculumStatus = "approved"
	CurriculumStatusRejected        CurriculumStatus = "rejected"
	CurriculumStatusPublished       CurriculumStatus = "published"
	CurriculumStatusArchived        CurriculumStatus = "archived"
)

// Valid reports whether the status is one of the known lifecycle values.
func (s CurriculumStatus) Valid() bool {
	switch s {
	case CurriculumStatusDraft,
		CurriculumStatusSubmitted,
		CurriculumStatusPendingApproval,
		CurriculumStatusApproved,
		CurriculumStatusRejected,
		CurriculumStatusPublished,
		CurriculumStatusArchived:
		return true
	}
	return false
}

// Reviewable reports whether a reviewer may approve or reject a curriculum in this status.
func (s CurriculumStatus) Reviewable() bool {
	return s == CurriculumStatusPendingApproval || s == CurriculumStatusSubmitted
}

// ParseCurriculumStatus normalises user input into a status, returning false when unknown.
func ParseCurriculumStatus(raw string) (CurriculumStatus, bool) {
	status := CurriculumStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// IsApprovedBucket reports whether status belongs to the user-facing
// "approved" bucket. Approved and published curricula are counted and
// filtered together everywhere.
func IsApprovedBucket(status CurriculumStatus) bool {
	return status == CurriculumStatusApproved || status == CurriculumStatusPublished
}

// CurriculumApprovalRequest is one curriculum submission awaiting or past review.
type CurriculumApprovalRequest struct {
	ID             string           `db:"id" json:"id"`
	CurriculumID   string           `db:"curriculum_id" json:"curriculumId"`
	OrganizationID string           `db:"organization_id" json:"organizationId"`
	CourseName     string           `db:"course_name" json:"courseName"`
	CourseCode     string           `db:"course_code" json:"courseCode"`
	CollegeID      string           `db:"college_id" json:"collegeId"`
	CollegeName    string           `db:"college_name" json:"collegeName"`
	DepartmentID   string           `db:"department_id" json:"departmentId"`
	DepartmentName string           `db:"department_name" json:"departmentName"`
	RequestedBy    string           `db:"requested_by" json:"requestedBy"`
	RequesterName  string           `db:"requester_name" json:"requesterName"`
	SubmittedAt    time.Time        `db:"submitted_at" json:"submittedAt"`
	Status         CurriculumStatus `db:"status" json:"status"`
	ReviewNotes    *string          `db:"review_notes" json:"reviewNotes,omitempty"`
	ReviewedBy     *string          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// ApprovalFilter captures the reviewer-facing filters for approval requests.
type ApprovalFilter struct {
	Status       string `json:"status,omitempty"`
	CollegeID    string `json:"collegeId,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
}

// Approved reports whether the filter selects the approved bucket.
func (f ApprovalFilter) Approved() bool {
	status, _ := ParseCurriculumStatus(f.Status)
	return status == CurriculumStatusApproved
}

// Query converts the filter into a store query. The approved filter drops the
// status constraint so Retain can keep both statuses of the bucket.
func (f ApprovalFilter) Query(limit int) (ApprovalQuery, error) {
	query := ApprovalQuery{
		CollegeID:    strings.TrimSpace(f.CollegeID),
		DepartmentID: strings.TrimSpace(f.DepartmentID),
		Limit:        limit,
	}
	if strings.TrimSpace(f.Status) == "" || strings.EqualFold(strings.TrimSpace(f.Status), "all") {
		return query, nil
	}
	status, ok := ParseCurriculumStatus(f.Status)
	if !ok {
		return ApprovalQuery{}, fmt.Errorf("unknown status %q", f.Status)
	}
	if status != CurriculumStatusApproved {
		query.Status = status
	}
	return query, nil
}

// Retain applies the approved-bucket policy to records fetched with Query.
func (f ApprovalFilter) Retain(records []CurriculumApprovalRequest) []CurriculumApprovalRequest {
	if !f.Approved() {
		return records
	}
	kept := make([]CurriculumApprovalRequest, 0, len(records))
	for _, record := range records {
		if IsApprovedBucket(record.Status) {
			kept = append(kept, record)
		}
	}
	return kept
}

// ApprovalQuery constrains store-level listing of approval requests.
// An empty Status means no status filter.
type ApprovalQuery struct {
	Status       CurriculumStatus
	CollegeID    string
	DepartmentID string
	Limit        int
}

// ApprovalStatistics carries per-organization status counts.
type ApprovalStatistics struct {
	Total     int `db:"total" json:"total"`
	Pending   int `db:"pending" json:"pending"`
	Approved  int `db:"approved" json:"approved"`
	Rejected  int `db:"rejected" json:"rejected"`
	Published int `db:"published" json:"published"`
}

// Displayed folds published counts into approved, the same way IsApprovedBucket does for lists.
func (s ApprovalStatistics) Displayed() ApprovalStatistics {
	out := s
	out.Approved = s.Approved + s.Published
	return out
}

// CurriculumReview records a reviewer decision on a whole curriculum.
// An approved decision publishes the curriculum.
type CurriculumReview struct {
	CurriculumID string
	Decision     CurriculumStatus
	Notes        string
	ReviewerID   string
	ReviewedAt   time.Time
}

// Curriculum is the published (or in-review) syllabus header.
type Curriculum struct {
	ID             string           `db:"id" json:"id"`
	OrganizationID string           `db:"organization_id" json:"organizationId"`
	CourseName     string           `db:"course_name" json:"courseName"`
	CourseCode     string           `db:"course_code" json:"courseCode"`
	Credits        int              `db:"credits" json:"credits"`
	Description    string           `db:"description" json:"description"`
	CollegeName    string           `db:"college_name" json:"collegeName"`
	DepartmentName string           `db:"department_name" json:"departmentName"`
	Status         CurriculumStatus `db:"status" json:"status"`
	HasPending     bool             `db:"has_pending_changes" json:"hasPendingChanges"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// Unit is an ordered section of a curriculum.
type Unit struct {
	ID           string    `db:"id" json:"id"`
	CurriculumID string    `db:"curriculum_id" json:"curriculumId"`
	Position     int       `db:"position" json:"position"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Hours        int       `db:"hours" json:"hours"`
	Outcomes     []Outcome `db:"-" json:"outcomes"`
}

// Outcome is an ordered learning outcome of a unit.
type Outcome struct {
	ID          string              `db:"id" json:"id"`
	UnitID      string              `db:"unit_id" json:"unitId"`
	Position    int                 `db:"position" json:"position"`
	Code        string              `db:"code" json:"code"`
	Description string              `db:"description" json:"description"`
	BloomLevel  string              `db:"bloom_level" json:"bloomLevel"`
	Mappings    []AssessmentMapping `db:"-" json:"assessmentMappings,omitempty"`
}

// AssessmentMapping annotates how an outcome is assessed.
type AssessmentMapping struct {
	OutcomeID string  `db:"outcome_id" json:"outcomeId"`
	Type      string  `db:"assessment_type" json:"type"`
	Weightage float64 `db:"weightage" json:"weightage"`
}

// CurriculumDetail is the view-only aggregate opened by a reviewer.
type CurriculumDetail struct {
	Curriculum
	Units []Unit `json:"units"`
}
