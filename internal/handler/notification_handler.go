package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/response"
)

const maxNotificationLimit = 200

type notificationInbox interface {
	ListForRecipient(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	Subscribe(ctx context.Context, userID string, fn func([]models.Notification)) (func(), error)
}

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	service   notificationInbox
	heartbeat time.Duration
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationInbox) *NotificationHandler {
	return &NotificationHandler{service: service, heartbeat: defaultStreamHeartbeat}
}

// WithStreamHeartbeat sets the idle interval between heartbeat events on live streams.
func (h *NotificationHandler) WithStreamHeartbeat(interval time.Duration) *NotificationHandler {
	if interval > 0 {
		h.heartbeat = interval
	}
	return h
}

// List godoc
// @Summary List the current user's notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Param limit query int false "Maximum number of entries"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.NotificationQuery
	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unread must be a boolean"))
			return
		}
		query.UnreadOnly = unread
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxNotificationLimit {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and 200"))
			return
		}
		query.Limit = limit
	}

	items, err := h.service.ListForRecipient(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Stream godoc
// @Summary Live feed of the current user's unread notifications
// @Tags Notifications
// @Produce text/event-stream
// @Router /notifications/stream [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	streamSnapshots(c, h.heartbeat, func(ctx context.Context, push func([]models.Notification)) (func(), error) {
		return h.service.Subscribe(ctx, claims.UserID, push)
	})
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrNotConfigured)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
