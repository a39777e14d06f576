package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hris-leave-api/internal/middleware"
	"github.com/noah-isme/hris-leave-api/internal/models"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Leave         *LeaveHandler
	Approvers     *LeaveApproverHandler
	Notifications *NotificationHandler
	// WriteLimit throttles filing, decisions and approver edits. Nil means no limit.
	WriteLimit gin.HandlerFunc
}

// RegisterRoutes mounts the leave and notification routes on an authenticated group.
func RegisterRoutes(secured *gin.RouterGroup, h Handlers) {
	limit := h.WriteLimit
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	if h.Leave != nil {
		leave := secured.Group("/leave")
		leave.GET("/types", h.Leave.Types)
		leave.GET("/balances", h.Leave.Balances)

		requests := leave.Group("/requests")
		requests.POST("", limit, h.Leave.Submit)
		requests.GET("/me", h.Leave.Mine)
		requests.GET("/me/stream", h.Leave.MineStream)
		requests.GET("/me/export", h.Leave.MineExport)
		requests.GET("/pending", h.Leave.Pending)
		requests.GET("/pending/stream", h.Leave.PendingStream)
		requests.GET("/:id", h.Leave.Get)
		requests.POST("/:id/approve", limit, h.Leave.Approve)
		requests.POST("/:id/reject", limit, h.Leave.Reject)
		requests.POST("/:id/cancel", limit, h.Leave.Cancel)
	}

	if h.Approvers != nil {
		approvers := secured.Group("/leave/approvers")
		hrOrSelf := middleware.RBAC(string(models.RoleHR), string(models.RoleAdmin), middleware.RoleSelf)
		approvers.GET("/:employeeId", hrOrSelf, h.Approvers.Get)
		approvers.GET("/:employeeId/stream", hrOrSelf, h.Approvers.Stream)
		approvers.PUT("/:employeeId", middleware.RequireRoles(models.RoleHR, models.RoleAdmin), limit, h.Approvers.Set)
	}

	if h.Notifications != nil {
		notifications := secured.Group("/notifications")
		notifications.GET("", h.Notifications.List)
		notifications.GET("/stream", h.Notifications.Stream)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
	}
}
