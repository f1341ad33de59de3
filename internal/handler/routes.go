package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/syllabus-approval-api/internal/middleware"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Approvals *ApprovalHandler
	Changes   *ChangeRequestHandler
	Curricula *CurriculumHandler
	Exports   *ExportHandler
	Events    *EventsHandler
	Console   *ConsoleHandler
	Metrics   *MetricsHandler
	Auth      gin.HandlerFunc
}

// RegisterRoutes mounts the API on group. Nil handlers are skipped.
func RegisterRoutes(group *gin.RouterGroup, h Handlers) {
	if h.Exports != nil {
		group.GET("/exports/:token", h.Exports.Download)
	}

	secured := group.Group("")
	if h.Auth != nil {
		secured.Use(h.Auth)
	}
	reviewers := secured.Group("", middleware.RequireRoles(models.ReviewerRoles...))

	org := reviewers.Group("/orgs/:orgId", middleware.RequireOrgAccess("orgId"))
	if h.Approvals != nil {
		org.GET("/approvals", h.Approvals.List)
		org.GET("/approvals/statistics", h.Approvals.Statistics)
		reviewers.POST("/curricula/:curriculumId/approve", h.Approvals.Approve)
		reviewers.POST("/curricula/:curriculumId/reject", h.Approvals.Reject)
	}
	if h.Exports != nil {
		org.GET("/approvals/export", h.Exports.Export)
	}
	if h.Changes != nil {
		org.GET("/changes", h.Changes.ListPending)
		reviewers.POST("/curricula/:curriculumId/changes/:changeId/approve", h.Changes.Approve)
		reviewers.POST("/curricula/:curriculumId/changes/:changeId/reject", h.Changes.Reject)
		secured.POST("/curricula/:curriculumId/changes", middleware.RequireRoles(models.RoleCollege), h.Changes.Create)
	}
	if h.Events != nil {
		org.GET("/events", h.Events.Stream)
	}
	if h.Curricula != nil {
		reviewers.GET("/curricula/:curriculumId", h.Curricula.Detail)
	}
	if h.Console != nil {
		sessions := reviewers.Group("/console/sessions")
		sessions.POST("", h.Console.Create)
		sessions.GET("/:sessionId", h.Console.Get)
		sessions.DELETE("/:sessionId", h.Console.Delete)
		sessions.POST("/:sessionId/view", h.Console.Act)
		sessions.GET("/:sessionId/notifications", h.Console.Notifications)
		sessions.POST("/:sessionId/curricula/:curriculumId/approve", h.Console.ApproveCurriculum)
		sessions.POST("/:sessionId/curricula/:curriculumId/reject", h.Console.RejectCurriculum)
		sessions.POST("/:sessionId/changes/:changeId/approve", h.Console.ApproveChange)
		sessions.POST("/:sessionId/changes/:changeId/reject", h.Console.RejectChange)
	}
	if h.Metrics != nil {
		secured.GET("/admin/metrics", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), h.Metrics.Summary)
	}
}
