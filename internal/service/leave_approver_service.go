package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
)

type approverStore interface {
	GetByEmployee(ctx context.Context, employeeID string) (*models.LeaveApproverAssignment, error)
	Upsert(ctx context.Context, assignment *models.LeaveApproverAssignment) error
}

// LeaveApproverService resolves who approves each leave type for an employee.
type LeaveApproverService struct {
	store     approverStore
	feed      changeFeed
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// LeaveApproverOption configures the service.
type LeaveApproverOption func(*LeaveApproverService)

// WithApproverChangeFeed publishes assignment changes so subscribers refresh.
func WithApproverChangeFeed(feed changeFeed) LeaveApproverOption {
	return func(s *LeaveApproverService) {
		s.feed = feed
	}
}

// WithApproverMetrics tracks open assignment subscriptions.
func WithApproverMetrics(metrics *MetricsService) LeaveApproverOption {
	return func(s *LeaveApproverService) {
		s.metrics = metrics
	}
}

// NewLeaveApproverService constructs the service.
func NewLeaveApproverService(store approverStore, validate *validator.Validate, logger *zap.Logger, opts ...LeaveApproverOption) *LeaveApproverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &LeaveApproverService{store: store, validator: validate, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// DefaultAssignment lists every catalog type with no approver.
func (s *LeaveApproverService) DefaultAssignment(employeeID string) *models.LeaveApproverAssignment {
	entries := make([]models.LeaveApproverEntry, 0, len(leaveCatalog))
	for _, entry := range leaveCatalog {
		entries = append(entries, models.LeaveApproverEntry{LeaveType: entry.Type})
	}
	return &models.LeaveApproverAssignment{EmployeeID: employeeID, Assignments: entries}
}

// GetAssignment returns the stored mapping, or the default when none exists.
func (s *LeaveApproverService) GetAssignment(ctx context.Context, employeeID string) (*models.LeaveApproverAssignment, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "employee id is required")
	}
	stored, err := s.store.GetByEmployee(ctx, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.DefaultAssignment(employeeID), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave approvers")
	}
	stored.Assignments = normaliseApproverEntries(stored.Assignments)
	return stored, nil
}

// SetAssignment replaces the whole mapping for the employee.
func (s *LeaveApproverService) SetAssignment(ctx context.Context, employeeID string, req dto.SetLeaveApproversRequest, updatedBy string) (*models.LeaveApproverAssignment, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "employee id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approver assignment payload")
	}

	seen := make(map[models.LeaveType]struct{}, len(req.Assignments))
	entries := make([]models.LeaveApproverEntry, 0, len(req.Assignments))
	for _, item := range req.Assignments {
		if !IsKnownLeaveType(item.LeaveType) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown leave type %q", item.LeaveType))
		}
		if _, dup := seen[item.LeaveType]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("leave type %q assigned more than once", item.LeaveType))
		}
		seen[item.LeaveType] = struct{}{}
		var approver *string
		if item.ApproverID != nil {
			if id := strings.TrimSpace(*item.ApproverID); id != "" {
				approver = &id
			}
		}
		entries = append(entries, models.LeaveApproverEntry{LeaveType: item.LeaveType, ApproverID: approver})
	}

	assignment := &models.LeaveApproverAssignment{
		EmployeeID:  employeeID,
		Assignments: normaliseApproverEntries(entries),
		UpdatedAt:   s.now().UTC(),
		UpdatedBy:   updatedBy,
	}
	if err := s.store.Upsert(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save leave approvers")
	}
	s.logger.Info("leave approvers updated", zap.String("employee_id", employeeID), zap.String("updated_by", updatedBy))
	publishChange(ctx, s.feed, s.logger, approverAssignmentTopic(employeeID))
	return assignment, nil
}

// ApproverForType returns the approver configured for the type, or nil.
func (s *LeaveApproverService) ApproverForType(assignment *models.LeaveApproverAssignment, leaveType models.LeaveType) *string {
	if assignment == nil {
		return nil
	}
	for _, entry := range assignment.Assignments {
		if entry.LeaveType == leaveType && entry.ApproverID != nil && *entry.ApproverID != "" {
			id := *entry.ApproverID
			return &id
		}
	}
	return nil
}

// ResolveApprover reads the current assignment and picks the approver for the type.
func (s *LeaveApproverService) ResolveApprover(ctx context.Context, employeeID string, leaveType models.LeaveType) (*string, error) {
	assignment, err := s.GetAssignment(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.ApproverForType(assignment, leaveType), nil
}

// Subscribe pushes the assignment now and after every change.
func (s *LeaveApproverService) Subscribe(ctx context.Context, employeeID string, fn func(*models.LeaveApproverAssignment)) (func(), error) {
	unsubscribe, err := subscribeQuery(ctx, s.feed, approverAssignmentTopic(employeeID), func(ctx context.Context) (*models.LeaveApproverAssignment, error) {
		return s.GetAssignment(ctx, employeeID)
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

// normaliseApproverEntries returns one entry per catalog type in catalog order.
// Types outside the catalog are dropped; missing ones are unassigned.
func normaliseApproverEntries(entries []models.LeaveApproverEntry) []models.LeaveApproverEntry {
	byType := make(map[models.LeaveType]*string, len(entries))
	for _, entry := range entries {
		byType[entry.LeaveType] = entry.ApproverID
	}
	out := make([]models.LeaveApproverEntry, 0, len(leaveCatalog))
	for _, item := range leaveCatalog {
		out = append(out, models.LeaveApproverEntry{LeaveType: item.Type, ApproverID: byType[item.Type]})
	}
	return out
}
