package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens issued by the identity service.
type JWTClaims struct {
	UserID         string   `json:"user_id"`
	Role           UserRole `json:"role"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	OrganizationID string   `json:"org_id"`
	jwt.RegisteredClaims
}

// CanAccessOrganization reports whether the caller may act on orgID.
// Super admins span organizations; everyone else is pinned to their own.
func (c *JWTClaims) CanAccessOrganization(orgID string) bool {
	if c == nil {
		return false
	}
	if c.Role == RoleSuperAdmin {
		return true
	}
	return c.OrganizationID != "" && c.OrganizationID == orgID
}
