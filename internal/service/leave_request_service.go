package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hris-leave-api/internal/models"
	"github.com/noah-isme/hris-leave-api/internal/repository"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
)

type leaveRequestStore interface {
	Create(ctx context.Context, req *models.LeaveRequest) error
	GetByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]models.LeaveRequest, error)
	ListPendingByApprover(ctx context.Context, approverID string) ([]models.LeaveRequest, error)
	UpdateDecision(ctx context.Context, params repository.UpdateLeaveDecisionParams) error
}

type approverResolver interface {
	ResolveApprover(ctx context.Context, employeeID string, leaveType models.LeaveType) (*string, error)
}

type balanceInvalidator interface {
	Invalidate(ctx context.Context, employeeID string)
}

// CreateLeaveParams describes a new leave filing.
type CreateLeaveParams struct {
	EmployeeID   string
	EmployeeName string
	LeaveType    models.LeaveType
	StartDate    time.Time
	EndDate      time.Time
	Reason       string
}

// LeaveRequestService owns the pending -> approved | rejected | cancelled state machine.
//
// Every transition is a conditional write against status = pending, so a request
// reaches exactly one terminal state. Eligibility and approver presence are not
// checked here; LeaveFilingService does that before calling Create.
type LeaveRequestService struct {
	store     leaveRequestStore
	approvers approverResolver
	notifier  NotificationDispatcher
	feed      changeFeed
	balances  balanceInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// LeaveRequestOption configures the service.
type LeaveRequestOption func(*LeaveRequestService)

// WithLeaveNotifier sets the dispatcher informed about new requests and decisions.
func WithLeaveNotifier(notifier NotificationDispatcher) LeaveRequestOption {
	return func(s *LeaveRequestService) {
		s.notifier = notifier
	}
}

// WithLeaveChangeFeed publishes request changes for live subscriptions.
func WithLeaveChangeFeed(feed changeFeed) LeaveRequestOption {
	return func(s *LeaveRequestService) {
		s.feed = feed
	}
}

// WithLeaveBalanceInvalidator drops cached balances after every write.
func WithLeaveBalanceInvalidator(balances balanceInvalidator) LeaveRequestOption {
	return func(s *LeaveRequestService) {
		s.balances = balances
	}
}

// WithLeaveMetrics records transition counters.
func WithLeaveMetrics(metrics *MetricsService) LeaveRequestOption {
	return func(s *LeaveRequestService) {
		s.metrics = metrics
	}
}

// WithLeaveClock overrides the timestamp source.
func WithLeaveClock(now func() time.Time) LeaveRequestOption {
	return func(s *LeaveRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLeaveRequestService constructs the service.
func NewLeaveRequestService(store leaveRequestStore, approvers approverResolver, logger *zap.Logger, opts ...LeaveRequestOption) *LeaveRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LeaveRequestService{store: store, approvers: approvers, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create stores a pending request routed to the approver currently assigned for its type.
// A request without an approver is still stored with a nil approver.
func (s *LeaveRequestService) Create(ctx context.Context, params CreateLeaveParams) (*models.LeaveRequest, error) {
	if strings.TrimSpace(params.EmployeeID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "employee id is required")
	}
	if !IsKnownLeaveType(params.LeaveType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown leave type %q", params.LeaveType))
	}
	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}
	start, end := civilDate(params.StartDate), civilDate(params.EndDate)
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}

	approverID, err := s.approvers.ResolveApprover(ctx, params.EmployeeID, params.LeaveType)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &models.LeaveRequest{
		EmployeeID:   params.EmployeeID,
		EmployeeName: strings.TrimSpace(params.EmployeeName),
		LeaveType:    params.LeaveType,
		StartDate:    start,
		EndDate:      end,
		TotalDays:    CalendarDaySpan(start, end),
		Reason:       reason,
		Status:       models.LeaveStatusPending,
		ApproverID:   approverID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}

	s.logger.Info("leave request created",
		zap.String("leave_request_id", req.ID),
		zap.String("employee_id", req.EmployeeID),
		zap.String("leave_type", string(req.LeaveType)),
		zap.Int("total_days", req.TotalDays),
		zap.Bool("has_approver", approverID != nil),
	)
	s.metrics.RecordLeaveTransition("create")

	if approverID != nil {
		s.notify(ctx, models.Notification{
			RecipientUserID: *approverID,
			Kind:            models.NotificationLeaveRequest,
			Title:           "New leave request",
			Message: fmt.Sprintf("%s requested %s from %s to %s (%d day(s)).",
				displayName(req.EmployeeName, req.EmployeeID), leaveLabel(req.LeaveType),
				req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout), req.TotalDays),
			Metadata: models.NotificationMetadata{LeaveRequestID: req.ID, EmployeeID: req.EmployeeID, LeaveType: req.LeaveType},
		})
	}
	s.afterWrite(ctx, req)
	return req, nil
}

// Approve moves a pending request to approved. Approver identity is recorded, not verified.
func (s *LeaveRequestService) Approve(ctx context.Context, id, approverID, approverName string) (*models.LeaveRequest, error) {
	now := s.now().UTC()
	name := strings.TrimSpace(approverName)
	req, err := s.transition(ctx, id, "approve", repository.UpdateLeaveDecisionParams{
		ID:           id,
		Status:       models.LeaveStatusApproved,
		ApproverName: &name,
		ApprovedAt:   &now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	req.ApproverName = &name
	req.ApprovedAt = &now

	s.logger.Info("leave request approved", zap.String("leave_request_id", id), zap.String("approver_id", approverID))
	s.notify(ctx, models.Notification{
		RecipientUserID: req.EmployeeID,
		Kind:            models.NotificationLeaveApproved,
		Title:           "Leave request approved",
		Message: fmt.Sprintf("Your %s from %s to %s was approved by %s.",
			leaveLabel(req.LeaveType), req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout), displayName(name, approverID)),
		Metadata: models.NotificationMetadata{LeaveRequestID: req.ID, LeaveType: req.LeaveType},
	})
	s.afterWrite(ctx, req, approverID)
	return req, nil
}

// Reject moves a pending request to rejected with an optional reason.
func (s *LeaveRequestService) Reject(ctx context.Context, id, approverID, approverName, reason string) (*models.LeaveRequest, error) {
	now := s.now().UTC()
	name := strings.TrimSpace(approverName)
	params := repository.UpdateLeaveDecisionParams{
		ID:           id,
		Status:       models.LeaveStatusRejected,
		ApproverName: &name,
		RejectedAt:   &now,
		UpdatedAt:    now,
	}
	trimmed := strings.TrimSpace(reason)
	if trimmed != "" {
		params.RejectionReason = &trimmed
	}
	req, err := s.transition(ctx, id, "reject", params)
	if err != nil {
		return nil, err
	}
	req.ApproverName = &name
	req.RejectedAt = &now
	req.RejectionReason = params.RejectionReason

	message := fmt.Sprintf("Your %s from %s to %s was rejected by %s.",
		leaveLabel(req.LeaveType), req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout), displayName(name, approverID))
	if trimmed != "" {
		message += " Reason: " + trimmed
	}
	s.logger.Info("leave request rejected", zap.String("leave_request_id", id), zap.String("approver_id", approverID))
	s.notify(ctx, models.Notification{
		RecipientUserID: req.EmployeeID,
		Kind:            models.NotificationLeaveRejected,
		Title:           "Leave request rejected",
		Message:         message,
		Metadata:        models.NotificationMetadata{LeaveRequestID: req.ID, LeaveType: req.LeaveType},
	})
	s.afterWrite(ctx, req, approverID)
	return req, nil
}

// Cancel moves a pending request to cancelled. Ownership is checked by the caller.
func (s *LeaveRequestService) Cancel(ctx context.Context, id string) (*models.LeaveRequest, error) {
	now := s.now().UTC()
	req, err := s.transition(ctx, id, "cancel", repository.UpdateLeaveDecisionParams{
		ID:        id,
		Status:    models.LeaveStatusCancelled,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("leave request cancelled", zap.String("leave_request_id", id), zap.String("employee_id", req.EmployeeID))
	s.afterWrite(ctx, req)
	return req, nil
}

// Get returns a single request.
func (s *LeaveRequestService) Get(ctx context.Context, id string) (*models.LeaveRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "leave request id is required")
	}
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	return req, nil
}

// ListByEmployee returns the employee's requests, newest first.
func (s *LeaveRequestService) ListByEmployee(ctx context.Context, employeeID string) ([]models.LeaveRequest, error) {
	items, err := s.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return items, nil
}

// ListPendingForApprover returns pending requests routed to the approver, newest first.
func (s *LeaveRequestService) ListPendingForApprover(ctx context.Context, approverID string) ([]models.LeaveRequest, error) {
	items, err := s.store.ListPendingByApprover(ctx, approverID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending leave requests")
	}
	return items, nil
}

// SubscribeEmployee pushes the employee's requests now and after every change to them.
func (s *LeaveRequestService) SubscribeEmployee(ctx context.Context, employeeID string, fn func([]models.LeaveRequest)) (func(), error) {
	return s.subscribe(ctx, employeeRequestsTopic(employeeID), func(ctx context.Context) ([]models.LeaveRequest, error) {
		return s.ListByEmployee(ctx, employeeID)
	}, fn)
}

// SubscribePendingForApprover pushes the approver's pending queue now and after every change to it.
func (s *LeaveRequestService) SubscribePendingForApprover(ctx context.Context, approverID string, fn func([]models.LeaveRequest)) (func(), error) {
	return s.subscribe(ctx, approverRequestsTopic(approverID), func(ctx context.Context) ([]models.LeaveRequest, error) {
		return s.ListPendingForApprover(ctx, approverID)
	}, fn)
}

func (s *LeaveRequestService) subscribe(ctx context.Context, topic string, load func(context.Context) ([]models.LeaveRequest, error), fn func([]models.LeaveRequest)) (func(), error) {
	unsubscribe, err := subscribeQuery(ctx, s.feed, topic, load, fn, s.logger)
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

// transition applies a guarded status change and returns the request as it was
// before the write with status and updated_at refreshed.
func (s *LeaveRequestService) transition(ctx context.Context, id, action string, params repository.UpdateLeaveDecisionParams) (*models.LeaveRequest, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, alreadyDecided(current.Status)
	}

	if err := s.store.UpdateDecision(ctx, params); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update leave request")
		}
		// Lost a race with another decision; report what won.
		latest, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, alreadyDecided(latest.Status)
	}

	s.metrics.RecordLeaveTransition(action)
	current.Status = params.Status
	current.UpdatedAt = params.UpdatedAt
	return current, nil
}

func alreadyDecided(status models.LeaveStatus) error {
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("leave request is already %s", status))
}

// notify hands the notification to the dispatcher. Failures are logged and
// counted but never returned.
func (s *LeaveRequestService) notify(ctx context.Context, notification models.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.metrics.RecordNotificationFailure(string(notification.Kind))
		s.logger.Error("leave notification failed",
			zap.String("recipient", notification.RecipientUserID),
			zap.String("kind", string(notification.Kind)),
			zap.String("leave_request_id", notification.Metadata.LeaveRequestID),
			zap.Error(err),
		)
	}
}

// afterWrite publishes change signals for everyone watching the request and
// drops the employee's cached balances.
func (s *LeaveRequestService) afterWrite(ctx context.Context, req *models.LeaveRequest, extraApprovers ...string) {
	if s.balances != nil {
		s.balances.Invalidate(ctx, req.EmployeeID)
	}
	topics := []string{employeeRequestsTopic(req.EmployeeID)}
	if req.ApproverID != nil {
		topics = append(topics, approverRequestsTopic(*req.ApproverID))
	}
	for _, approverID := range extraApprovers {
		if approverID != "" && (req.ApproverID == nil || *req.ApproverID != approverID) {
			topics = append(topics, approverRequestsTopic(approverID))
		}
	}
	publishChange(ctx, s.feed, s.logger, topics...)
}

func leaveLabel(t models.LeaveType) string {
	if entry, ok := LookupLeaveType(t); ok {
		return entry.Label
	}
	return string(t)
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}
