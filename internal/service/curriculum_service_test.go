package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

type detailReaderStub struct {
	detail *models.CurriculumDetail
}

func (s detailReaderStub) GetDetail(ctx context.Context, id string) (*models.CurriculumDetail, error) {
	if s.detail == nil || s.detail.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.detail, nil
}

func TestCurriculumServiceGetDetail(t *testing.T) {
	repo := detailReaderStub{detail: &models.CurriculumDetail{
		Curriculum: models.Curriculum{ID: "cur-1", OrganizationID: "org-1", CourseName: "Algorithms"},
		Units:      []models.Unit{{ID: "unit-1", Title: "Sorting"}},
	}}
	svc := NewCurriculumService(repo, nil)

	detail, err := svc.GetCurriculumDetail(context.Background(), "cur-1", reviewer("org-1"))
	require.NoError(t, err)
	assert.Len(t, detail.Units, 1)

	_, err = svc.GetCurriculumDetail(context.Background(), "cur-1", reviewer("org-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetCurriculumDetail(context.Background(), "missing", reviewer("org-1"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.GetCurriculumDetail(context.Background(), "cur-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
