package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/jobs"
)

const notificationJobType = "notification.deliver"

// NotificationDispatcher delivers workflow notifications to a user.
type NotificationDispatcher interface {
	Notify(ctx context.Context, notification models.Notification) error
}

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
}

// NotificationService stores notifications in the recipient's inbox, either
// inline or through a retrying background queue.
type NotificationService struct {
	store   notificationStore
	feed    changeFeed
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NotificationOption configures the service.
type NotificationOption func(*NotificationService)

// WithNotificationFeed publishes inbox changes on the feed.
func WithNotificationFeed(feed changeFeed) NotificationOption {
	return func(s *NotificationService) {
		s.feed = feed
	}
}

// WithNotificationMetrics records delivery counts.
func WithNotificationMetrics(metrics *MetricsService) NotificationOption {
	return func(s *NotificationService) {
		s.metrics = metrics
	}
}

// WithNotificationQueue delivers notifications asynchronously with retries.
// The queue must be started with Start before notifications are accepted.
func WithNotificationQueue(cfg jobs.QueueConfig) NotificationOption {
	return func(s *NotificationService) {
		cfg.Logger = s.logger
		cfg.OnExhaust = s.exhausted
		s.queue = jobs.NewQueue("notifications", s.handleJob, cfg)
	}
}

// NewNotificationService constructs the service.
func NewNotificationService(store notificationStore, logger *zap.Logger, opts ...NotificationOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Start launches the delivery workers when a queue is configured.
func (s *NotificationService) Start(ctx context.Context) {
	if s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop halts the workers; queued deliveries are dropped.
func (s *NotificationService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Notify validates the notification and hands it to the queue, or stores it inline without one.
// A full queue drops the notification and returns an error instead of waiting.
func (s *NotificationService) Notify(ctx context.Context, notification models.Notification) error {
	if strings.TrimSpace(notification.RecipientUserID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification recipient is required")
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now().UTC()
	}
	if s.queue == nil {
		return s.deliver(ctx, notification)
	}
	job := jobs.Job{ID: notification.ID, Type: notificationJobType, Payload: notification}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotificationFailure(string(notification.Kind))
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.deliver(ctx, notification)
}

func (s *NotificationService) exhausted(job jobs.Job, err error) {
	kind := ""
	recipient := ""
	if notification, ok := job.Payload.(models.Notification); ok {
		kind = string(notification.Kind)
		recipient = notification.RecipientUserID
	}
	s.metrics.RecordNotificationFailure(kind)
	s.logger.Error("notification dropped",
		zap.String("notification_id", job.ID),
		zap.String("recipient", recipient),
		zap.String("kind", kind),
		zap.Error(err),
	)
}

func (s *NotificationService) deliver(ctx context.Context, notification models.Notification) error {
	if err := s.store.Create(ctx, &notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}
	s.metrics.RecordNotificationDelivered(string(notification.Kind))
	publishChange(ctx, s.feed, s.logger, notificationsTopic(notification.RecipientUserID))
	return nil
}

// ListForRecipient returns the user's inbox, newest first.
func (s *NotificationService) ListForRecipient(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	items, err := s.store.ListByRecipient(ctx, userID, query.UnreadOnly, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, nil
}

// MarkRead flags a notification owned by the user as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	publishChange(ctx, s.feed, s.logger, notificationsTopic(userID))
	return nil
}

// Subscribe pushes the user's unread notifications now and after every change to the inbox.
func (s *NotificationService) Subscribe(ctx context.Context, userID string, fn func([]models.Notification)) (func(), error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	unsubscribe, err := subscribeQuery(ctx, s.feed, notificationsTopic(userID), func(ctx context.Context) ([]models.Notification, error) {
		return s.ListForRecipient(ctx, userID, dto.NotificationQuery{UnreadOnly: true})
	}, fn, s.logger)
	if err != nil {
		return nil, err
	}
	s.metrics.TrackLiveSubscription(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			s.metrics.TrackLiveSubscription(-1)
		})
	}, nil
}
