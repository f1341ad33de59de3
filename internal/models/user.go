package models

// UserRole is the role claim carried by access tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleReviewer   UserRole = "REVIEWER"
	// RoleCollege submits curricula and change requests but never reviews.
	RoleCollege UserRole = "COLLEGE_ADMIN"
)

// ReviewerRoles may list, approve and reject curricula and change requests.
var ReviewerRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleReviewer}

// CanReview reports whether r is one of ReviewerRoles.
func (r UserRole) CanReview() bool {
	for _, role := range ReviewerRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Pagination describes one page window over a filtered list.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes the page count for total items; an empty list has
// a single empty page.
func NewPagination(page, size, total int) Pagination {
	pages := 1
	if size > 0 && total > 0 {
		pages = (total + size - 1) / size
	}
	return Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: pages}
}
