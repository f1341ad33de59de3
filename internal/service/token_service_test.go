package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.IssueToken(&models.JWTClaims{
		UserID:         "rev-1",
		Role:           models.RoleReviewer,
		OrganizationID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "rev-1", claims.UserID)
	assert.Equal(t, models.RoleReviewer, claims.Role)
	assert.True(t, claims.CanAccessOrganization("org-1"))
	assert.False(t, claims.CanAccessOrganization("org-2"))
}

func TestTokenServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewTokenService("secret")
	expired, err := svc.IssueToken(&models.JWTClaims{
		UserID: "rev-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))

	foreign, err := NewTokenService("other").IssueToken(&models.JWTClaims{UserID: "rev-1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	_, err = svc.ValidateToken(" ")
	assert.Error(t, err)
}
