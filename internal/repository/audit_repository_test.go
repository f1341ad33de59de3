package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

func TestAuditRepositoryStampsIDAndTime(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	reviewerID, curriculumID := "rev-1", "cur-1"
	entry := &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionCurriculumReject,
		Resource:   "curriculum",
		ResourceID: &curriculumID,
		NewValues:  []byte(`{"status":"rejected"}`),
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewAuditRepository(db).CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryWrapsErrors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnError(errors.New("disk full"))

	err := NewAuditRepository(db).CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionExport})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create audit log")
}
