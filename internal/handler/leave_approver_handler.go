package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/response"
)

type leaveApproverService interface {
	GetAssignment(ctx context.Context, employeeID string) (*models.LeaveApproverAssignment, error)
	SetAssignment(ctx context.Context, employeeID string, req dto.SetLeaveApproversRequest, updatedBy string) (*models.LeaveApproverAssignment, error)
	Subscribe(ctx context.Context, employeeID string, fn func(*models.LeaveApproverAssignment)) (func(), error)
}

// LeaveApproverHandler manages per-employee approver assignments.
type LeaveApproverHandler struct {
	service   leaveApproverService
	heartbeat time.Duration
}

// NewLeaveApproverHandler constructs the handler.
func NewLeaveApproverHandler(service leaveApproverService) *LeaveApproverHandler {
	return &LeaveApproverHandler{service: service, heartbeat: defaultStreamHeartbeat}
}

// WithStreamHeartbeat sets the idle interval between heartbeat events.
func (h *LeaveApproverHandler) WithStreamHeartbeat(interval time.Duration) *LeaveApproverHandler {
	if interval > 0 {
		h.heartbeat = interval
	}
	return h
}

// Get godoc
// @Summary Get an employee's leave approvers
// @Tags Leave Approvers
// @Produce json
// @Param employeeId path string true "Employee ID"
// @Success 200 {object} response.Envelope
// @Router /leave/approvers/{employeeId} [get]
func (h *LeaveApproverHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	assignment, err := h.service.GetAssignment(c.Request.Context(), c.Param("employeeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Stream godoc
// @Summary Live feed of an employee's leave approvers
// @Tags Leave Approvers
// @Produce text/event-stream
// @Param employeeId path string true "Employee ID"
// @Router /leave/approvers/{employeeId}/stream [get]
func (h *LeaveApproverHandler) Stream(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	employeeID := c.Param("employeeId")
	streamSnapshots(c, h.heartbeat, func(ctx context.Context, push func(*models.LeaveApproverAssignment)) (func(), error) {
		return h.service.Subscribe(ctx, employeeID, push)
	})
}

// Set godoc
// @Summary Replace an employee's leave approvers
// @Tags Leave Approvers
// @Accept json
// @Produce json
// @Param employeeId path string true "Employee ID"
// @Param payload body dto.SetLeaveApproversRequest true "Full approver mapping"
// @Success 200 {object} response.Envelope
// @Router /leave/approvers/{employeeId} [put]
func (h *LeaveApproverHandler) Set(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SetLeaveApproversRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	assignment, err := h.service.SetAssignment(c.Request.Context(), c.Param("employeeId"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
