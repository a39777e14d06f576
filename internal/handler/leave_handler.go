package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/middleware"
	"github.com/noah-isme/hris-leave-api/internal/models"
	"github.com/noah-isme/hris-leave-api/internal/service"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/response"
)

type leaveLifecycleService interface {
	Get(ctx context.Context, id string) (*models.LeaveRequest, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]models.LeaveRequest, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]models.LeaveRequest, error)
	Approve(ctx context.Context, id, approverID, approverName string) (*models.LeaveRequest, error)
	Reject(ctx context.Context, id, approverID, approverName, reason string) (*models.LeaveRequest, error)
	SubscribeEmployee(ctx context.Context, employeeID string, fn func([]models.LeaveRequest)) (func(), error)
	SubscribePendingForApprover(ctx context.Context, approverID string, fn func([]models.LeaveRequest)) (func(), error)
}

type leaveFilingService interface {
	Submit(ctx context.Context, employeeID string, req dto.SubmitLeaveRequest) (*models.LeaveRequest, error)
	CancelOwn(ctx context.Context, employeeID, id string) (*models.LeaveRequest, error)
}

type leaveBalanceService interface {
	SummaryCached(ctx context.Context, employeeID string, year int) (map[models.LeaveType]models.LeaveBalance, bool, error)
}

type leaveExportService interface {
	ExportEmployeeHistory(ctx context.Context, employeeID string, format dto.LeaveExportFormat) (*service.ExportFile, error)
}

// LeaveHandler exposes the leave request endpoints.
type LeaveHandler struct {
	lifecycle leaveLifecycleService
	filing    leaveFilingService
	balances  leaveBalanceService
	exports   leaveExportService
	heartbeat time.Duration
	location  *time.Location
	now       func() time.Time
}

// NewLeaveHandler constructs a LeaveHandler.
func NewLeaveHandler(lifecycle leaveLifecycleService, filing leaveFilingService, balances leaveBalanceService, exports leaveExportService) *LeaveHandler {
	return &LeaveHandler{
		lifecycle: lifecycle,
		filing:    filing,
		balances:  balances,
		exports:   exports,
		heartbeat: defaultStreamHeartbeat,
		location:  time.UTC,
		now:       time.Now,
	}
}

// WithStreamHeartbeat sets the idle interval between heartbeat events on live streams.
func (h *LeaveHandler) WithStreamHeartbeat(interval time.Duration) *LeaveHandler {
	if interval > 0 {
		h.heartbeat = interval
	}
	return h
}

// WithLocation sets the zone used to pick the default balance year.
func (h *LeaveHandler) WithLocation(loc *time.Location) *LeaveHandler {
	if loc != nil {
		h.location = loc
	}
	return h
}

// Types godoc
// @Summary List leave types
// @Tags Leave
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /leave/types [get]
func (h *LeaveHandler) Types(c *gin.Context) {
	response.JSON(c, http.StatusOK, service.LeaveCatalog(), nil)
}

// Balances godoc
// @Summary Current user's leave balances
// @Tags Leave
// @Produce json
// @Param year query int false "Calendar year, defaults to the current year"
// @Success 200 {object} response.Envelope
// @Router /leave/balances [get]
func (h *LeaveHandler) Balances(c *gin.Context) {
	if h.balances == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	year := h.now().In(h.location).Year()
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 9999 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year must be a four digit number"))
			return
		}
		year = parsed
	}

	balances, hit, err := h.balances.SummaryCached(c.Request.Context(), claims.UserID, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, balances, nil, middleware.ExtractMeta(c))
}

// Submit godoc
// @Summary File a leave request
// @Tags Leave
// @Accept json
// @Produce json
// @Param payload body dto.SubmitLeaveRequest true "Leave request"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /leave/requests [post]
func (h *LeaveHandler) Submit(c *gin.Context) {
	if h.filing == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	created, err := h.filing.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Mine godoc
// @Summary Current user's leave requests, newest first
// @Tags Leave
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /leave/requests/me [get]
func (h *LeaveHandler) Mine(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.lifecycle.ListByEmployee(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// MineStream godoc
// @Summary Live feed of the current user's leave requests
// @Tags Leave
// @Produce text/event-stream
// @Router /leave/requests/me/stream [get]
func (h *LeaveHandler) MineStream(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	streamSnapshots(c, h.heartbeat, func(ctx context.Context, push func([]models.LeaveRequest)) (func(), error) {
		return h.lifecycle.SubscribeEmployee(ctx, claims.UserID, push)
	})
}

// MineExport godoc
// @Summary Download the current user's leave history
// @Tags Leave
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Router /leave/requests/me/export [get]
func (h *LeaveHandler) MineExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := dto.LeaveExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.LeaveExportCSV))))
	file, err := h.exports.ExportEmployeeHistory(c.Request.Context(), claims.UserID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Pending godoc
// @Summary Pending leave requests awaiting the current user's decision
// @Tags Leave
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /leave/requests/pending [get]
func (h *LeaveHandler) Pending(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.lifecycle.ListPendingForApprover(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// PendingStream godoc
// @Summary Live feed of the current user's approval queue
// @Tags Leave
// @Produce text/event-stream
// @Router /leave/requests/pending/stream [get]
func (h *LeaveHandler) PendingStream(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	streamSnapshots(c, h.heartbeat, func(ctx context.Context, push func([]models.LeaveRequest)) (func(), error) {
		return h.lifecycle.SubscribePendingForApprover(ctx, claims.UserID, push)
	})
}

// Get godoc
// @Summary Get a leave request
// @Tags Leave
// @Produce json
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /leave/requests/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(claims, req) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this leave request"))
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Approve godoc
// @Summary Approve a pending leave request
// @Tags Leave
// @Produce json
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leave/requests/{id}/approve [post]
func (h *LeaveHandler) Approve(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if !h.authorizeDecision(c, claims) {
		return
	}
	updated, err := h.lifecycle.Approve(c.Request.Context(), c.Param("id"), claims.UserID, callerName(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Reject godoc
// @Summary Reject a pending leave request
// @Tags Leave
// @Accept json
// @Produce json
// @Param id path string true "Leave request ID"
// @Param payload body dto.RejectLeaveRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leave/requests/{id}/reject [post]
func (h *LeaveHandler) Reject(c *gin.Context) {
	if h.lifecycle == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if !h.authorizeDecision(c, claims) {
		return
	}
	var req dto.RejectLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if len(req.Reason) > dto.MaxLeaveReasonLength {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reason must be at most %d characters", dto.MaxLeaveReasonLength)))
		return
	}
	updated, err := h.lifecycle.Reject(c.Request.Context(), c.Param("id"), claims.UserID, callerName(claims), strings.TrimSpace(req.Reason))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Cancel godoc
// @Summary Cancel one of the current user's pending leave requests
// @Tags Leave
// @Produce json
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leave/requests/{id}/cancel [post]
func (h *LeaveHandler) Cancel(c *gin.Context) {
	if h.filing == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	updated, err := h.filing.CancelOwn(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// authorizeDecision lets managers, HR and admins decide any request. Anyone
// else may decide only the requests routed to them.
func (h *LeaveHandler) authorizeDecision(c *gin.Context, claims *models.JWTClaims) bool {
	if hasRole(claims, models.RoleManager, models.RoleHR, models.RoleAdmin) {
		return true
	}
	req, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return false
	}
	if req.ApproverID == nil || *req.ApproverID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "not allowed to decide this leave request"))
		return false
	}
	return true
}

func canView(claims *models.JWTClaims, req *models.LeaveRequest) bool {
	if req.EmployeeID == claims.UserID {
		return true
	}
	if req.ApproverID != nil && *req.ApproverID == claims.UserID {
		return true
	}
	return hasRole(claims, models.RoleHR, models.RoleAdmin)
}
