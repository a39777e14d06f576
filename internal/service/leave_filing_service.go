package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
)

const noApproverMessage = "No approver assigned for this leave type. Please contact HR."

type employeeDirectory interface {
	GetProfile(ctx context.Context, id string) (*models.EmployeeProfile, error)
}

type leaveLifecycle interface {
	Create(ctx context.Context, params CreateLeaveParams) (*models.LeaveRequest, error)
	Get(ctx context.Context, id string) (*models.LeaveRequest, error)
	Cancel(ctx context.Context, id string) (*models.LeaveRequest, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]models.LeaveRequest, error)
}

type eligibilityChecker interface {
	Validate(leaveType models.LeaveType, startDate, endDate time.Time, existing []models.LeaveRequest, birthday *time.Time) models.EligibilityResult
}

// LeaveFilingService is the employee-facing entry point for filing and
// withdrawing leave. It runs the eligibility rules and refuses filings that
// have nobody to approve them.
//
// The balance check and the insert are separate steps, so two concurrent
// filings may both pass the check and overdraw the balance.
type LeaveFilingService struct {
	requests    leaveLifecycle
	approvers   approverResolver
	employees   employeeDirectory
	eligibility eligibilityChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLeaveFilingService constructs the service.
func NewLeaveFilingService(requests leaveLifecycle, approvers approverResolver, employees employeeDirectory, eligibility eligibilityChecker, validate *validator.Validate, logger *zap.Logger) *LeaveFilingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if eligibility == nil {
		eligibility = NewLeaveEligibilityValidator()
	}
	return &LeaveFilingService{
		requests:    requests,
		approvers:   approvers,
		employees:   employees,
		eligibility: eligibility,
		validator:   validate,
		logger:      logger,
	}
}

// Submit files a leave request for the employee.
func (s *LeaveFilingService) Submit(ctx context.Context, employeeID string, req dto.SubmitLeaveRequest) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave request payload")
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start date")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end date")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}

	profile, err := s.employees.GetProfile(ctx, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee profile")
	}

	history, err := s.requests.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	result := s.eligibility.Validate(req.LeaveType, start, end, history, profile.Birthday)
	if !result.Valid {
		s.logger.Info("leave filing declined",
			zap.String("employee_id", employeeID),
			zap.String("leave_type", string(req.LeaveType)),
			zap.String("reason", result.Error),
		)
		return nil, appErrors.Clone(appErrors.ErrNotEligible, result.Error)
	}

	approverID, err := s.approvers.ResolveApprover(ctx, employeeID, req.LeaveType)
	if err != nil {
		return nil, err
	}
	if approverID == nil {
		return nil, appErrors.Clone(appErrors.ErrNoApprover, noApproverMessage)
	}

	return s.requests.Create(ctx, CreateLeaveParams{
		EmployeeID:   employeeID,
		EmployeeName: profile.FullName,
		LeaveType:    req.LeaveType,
		StartDate:    start,
		EndDate:      end,
		Reason:       req.Reason,
	})
}

// CancelOwn withdraws a pending request filed by the employee.
func (s *LeaveFilingService) CancelOwn(ctx context.Context, employeeID, id string) (*models.LeaveRequest, error) {
	current, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.EmployeeID != employeeID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting employee can cancel this leave request")
	}
	return s.requests.Cancel(ctx, id)
}
