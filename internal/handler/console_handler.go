package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/syllabus-approval-api/internal/console"
	"github.com/noah-isme/syllabus-approval-api/internal/dto"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/response"
)

// ConsoleHandler drives reviewer console sessions over HTTP.
type ConsoleHandler struct {
	manager *console.Manager
}

// NewConsoleHandler constructs the handler.
func NewConsoleHandler(manager *console.Manager) *ConsoleHandler {
	return &ConsoleHandler{manager: manager}
}

// Create godoc
// @Summary Open a reviewer console session
// @Tags Console
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Organization"
// @Success 201 {object} response.Envelope
// @Router /console/sessions [post]
func (h *ConsoleHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid session payload"))
		return
	}
	if err := validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "orgId is required"))
		return
	}
	session, err := h.manager.Create(c.Request.Context(), req.OrgID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session.Snapshot())
}

// Get godoc
// @Summary Read the current console snapshot
// @Tags Console
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId} [get]
func (h *ConsoleHandler) Get(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}
	response.JSON(c, http.StatusOK, session.Snapshot(), nil)
}

// Act godoc
// @Summary Apply a view action (tab, filter, search, page, detail, organization)
// @Tags Console
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.ViewActionRequest true "Action"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId}/view [post]
func (h *ConsoleHandler) Act(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}
	var req dto.ViewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid action payload"))
		return
	}
	if err := validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown view action"))
		return
	}
	action := console.Action{
		Type:         console.ActionType(req.Action),
		Tab:          console.Tab(req.Tab),
		Filter:       req.Filter,
		Search:       req.Search,
		Page:         req.Page,
		CurriculumID: req.CurriculumID,
		OrgID:        req.OrgID,
	}
	if err := session.Dispatch(c.Request.Context(), action); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session.Snapshot(), nil)
}

// ApproveCurriculum godoc
// @Summary Approve a curriculum from the console
// @Tags Console
// @Param sessionId path string true "Session ID"
// @Param curriculumId path string true "Curriculum ID"
// @Param payload body dto.ReviewRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId}/curricula/{curriculumId}/approve [post]
func (h *ConsoleHandler) ApproveCurriculum(c *gin.Context) {
	h.review(c, func(s *console.Session, notes string) error {
		return s.ApproveCurriculum(c.Request.Context(), c.Param("curriculumId"), notes)
	})
}

// RejectCurriculum godoc
// @Summary Reject a curriculum from the console
// @Tags Console
// @Param sessionId path string true "Session ID"
// @Param curriculumId path string true "Curriculum ID"
// @Param payload body dto.ReviewRequest true "Feedback notes"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId}/curricula/{curriculumId}/reject [post]
func (h *ConsoleHandler) RejectCurriculum(c *gin.Context) {
	h.review(c, func(s *console.Session, notes string) error {
		return s.RejectCurriculum(c.Request.Context(), c.Param("curriculumId"), notes)
	})
}

// ApproveChange godoc
// @Summary Apply a change request from the console
// @Tags Console
// @Param sessionId path string true "Session ID"
// @Param changeId path string true "Change request ID"
// @Param payload body dto.ReviewRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId}/changes/{changeId}/approve [post]
func (h *ConsoleHandler) ApproveChange(c *gin.Context) {
	h.review(c, func(s *console.Session, notes string) error {
		return s.ApproveChange(c.Request.Context(), c.Param("changeId"), notes)
	})
}

// RejectChange godoc
// @Summary Discard a change request from the console
// @Tags Console
// @Param sessionId path string true "Session ID"
// @Param changeId path string true "Change request ID"
// @Param payload body dto.ReviewRequest true "Feedback notes"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId}/changes/{changeId}/reject [post]
func (h *ConsoleHandler) RejectChange(c *gin.Context) {
	h.review(c, func(s *console.Session, notes string) error {
		return s.RejectChange(c.Request.Context(), c.Param("changeId"), notes)
	})
}

// Notifications godoc
// @Summary Drain queued console notifications
// @Tags Console
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /console/sessions/{sessionId}/notifications [get]
func (h *ConsoleHandler) Notifications(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}
	response.JSON(c, http.StatusOK, session.Notifications(), nil)
}

// Delete godoc
// @Summary Close a console session
// @Tags Console
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /console/sessions/{sessionId} [delete]
func (h *ConsoleHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.manager.Close(c.Param("sessionId"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *ConsoleHandler) session(c *gin.Context) *console.Session {
	claims := requireClaims(c)
	if claims == nil {
		return nil
	}
	session, err := h.manager.Get(c.Param("sessionId"), claims)
	if err != nil {
		response.Error(c, err)
		return nil
	}
	return session
}

func (h *ConsoleHandler) review(c *gin.Context, call func(*console.Session, string) error) {
	session := h.session(c)
	if session == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindReview(c, &req) {
		return
	}
	if err := call(session, req.Notes); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session.Snapshot(), nil)
}
