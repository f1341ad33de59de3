package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/dto"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

type changeServiceStub struct {
	pending      []models.ChangeRequest
	err          error
	created      dto.CreateChangeRequest
	curriculumID string
	changeID     string
	notes        string
}

func (s *changeServiceStub) GetAllPendingChangesForUniversity(context.Context, string) ([]models.ChangeRequest, error) {
	return s.pending, s.err
}

func (s *changeServiceStub) RequestChange(_ context.Context, curriculumID string, req dto.CreateChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	s.curriculumID, s.created = curriculumID, req
	if s.err != nil {
		return nil, s.err
	}
	return &models.ChangeRequest{ID: "chg-1", CurriculumID: curriculumID, ChangeType: req.ChangeType, RequestedBy: actor.UserID, Status: models.ChangeStatusPending}, nil
}

func (s *changeServiceStub) ApproveChange(_ context.Context, curriculumID, changeID, notes string, _ *models.JWTClaims) (*models.ChangeRequest, error) {
	return s.resolve(curriculumID, changeID, notes, models.ChangeStatusApplied)
}

func (s *changeServiceStub) RejectChange(_ context.Context, curriculumID, changeID, notes string, _ *models.JWTClaims) (*models.ChangeRequest, error) {
	return s.resolve(curriculumID, changeID, notes, models.ChangeStatusDiscarded)
}

func (s *changeServiceStub) resolve(curriculumID, changeID, notes string, status models.ChangeStatus) (*models.ChangeRequest, error) {
	s.curriculumID, s.changeID, s.notes = curriculumID, changeID, notes
	if s.err != nil {
		return nil, s.err
	}
	return &models.ChangeRequest{ID: changeID, CurriculumID: curriculumID, Status: status}, nil
}

func TestChangeRequestHandlerListPending(t *testing.T) {
	svc := &changeServiceStub{pending: []models.ChangeRequest{{ID: "chg-1"}}}
	h := NewChangeRequestHandler(svc)
	c, rec := testContext(http.MethodGet, "/orgs/org-1/changes", "", reviewer("org-1"), gin.Params{{Key: "orgId", Value: "org-1"}})

	h.ListPending(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var changes []models.ChangeRequest
	decodeData(t, rec, &changes)
	require.Len(t, changes, 1)
	assert.Equal(t, "chg-1", changes[0].ID)
}

func TestChangeRequestHandlerCreate(t *testing.T) {
	svc := &changeServiceStub{}
	h := NewChangeRequestHandler(svc)
	college := &models.JWTClaims{UserID: "col-admin", Role: models.RoleCollege, OrganizationID: "org-1"}
	body := `{"changeType":"unit_edit","payload":{"before":{"id":"u-1","title":"Old"},"after":{"id":"u-1","title":"New"}},"message":"rename unit"}`
	c, rec := testContext(http.MethodPost, "/curricula/cur-1/changes", body, college, gin.Params{{Key: "curriculumId", Value: "cur-1"}})

	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "cur-1", svc.curriculumID)
	assert.Equal(t, models.ChangeTypeUnitEdit, svc.created.ChangeType)
	assert.Equal(t, "rename unit", svc.created.Message)
	assert.JSONEq(t, `{"before":{"id":"u-1","title":"Old"},"after":{"id":"u-1","title":"New"}}`, string(svc.created.Payload))
}

func TestChangeRequestHandlerCreateMalformed(t *testing.T) {
	h := NewChangeRequestHandler(&changeServiceStub{})
	college := &models.JWTClaims{UserID: "col-admin", Role: models.RoleCollege, OrganizationID: "org-1"}
	c, rec := testContext(http.MethodPost, "/curricula/cur-1/changes", `[]`, college, gin.Params{{Key: "curriculumId", Value: "cur-1"}})

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeRequestHandlerResolve(t *testing.T) {
	params := gin.Params{{Key: "curriculumId", Value: "cur-1"}, {Key: "changeId", Value: "chg-9"}}

	t.Run("approve", func(t *testing.T) {
		svc := &changeServiceStub{}
		c, rec := testContext(http.MethodPost, "/curricula/cur-1/changes/chg-9/approve", "", reviewer("org-1"), params)
		NewChangeRequestHandler(svc).Approve(c)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "chg-9", svc.changeID)
		var change models.ChangeRequest
		decodeData(t, rec, &change)
		assert.Equal(t, models.ChangeStatusApplied, change.Status)
	})

	t.Run("reject", func(t *testing.T) {
		svc := &changeServiceStub{}
		c, rec := testContext(http.MethodPost, "/curricula/cur-1/changes/chg-9/reject", `{"notes":"keep the old title"}`, reviewer("org-1"), params)
		NewChangeRequestHandler(svc).Reject(c)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "keep the old title", svc.notes)
	})

	t.Run("target gone", func(t *testing.T) {
		svc := &changeServiceStub{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "unit targeted by the change no longer exists")}
		c, rec := testContext(http.MethodPost, "/curricula/cur-1/changes/chg-9/approve", "", reviewer("org-1"), params)
		NewChangeRequestHandler(svc).Approve(c)
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})
}
