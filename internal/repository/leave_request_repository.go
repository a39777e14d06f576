package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

const leaveRequestColumns = `id, employee_id, employee_name, leave_type, start_date, end_date, total_days, reason, status,
       approver_id, approver_name, approved_at, rejected_at, rejection_reason, created_at, updated_at`

// LeaveRequestRepository persists leave requests.
type LeaveRequestRepository struct {
	db *sqlx.DB
}

// NewLeaveRequestRepository constructs the repository.
func NewLeaveRequestRepository(db *sqlx.DB) *LeaveRequestRepository {
	return &LeaveRequestRepository{db: db}
}

// Create inserts a new leave request row.
func (r *LeaveRequestRepository) Create(ctx context.Context, req *models.LeaveRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.LeaveStatusPending
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	const query = `INSERT INTO leave_requests
	(id, employee_id, employee_name, leave_type, start_date, end_date, total_days, reason, status,
	 approver_id, approver_name, approved_at, rejected_at, rejection_reason, created_at, updated_at)
	VALUES (:id, :employee_id, :employee_name, :leave_type, :start_date, :end_date, :total_days, :reason, :status,
	 :approver_id, :approver_name, :approved_at, :rejected_at, :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// GetByID fetches a leave request by identifier.
func (r *LeaveRequestRepository) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	query := `SELECT ` + leaveRequestColumns + ` FROM leave_requests WHERE id = $1`
	var req models.LeaveRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns leave requests matching the filter, newest first.
func (r *LeaveRequestRepository) List(ctx context.Context, filter models.LeaveRequestFilter) ([]models.LeaveRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + leaveRequestColumns + ` FROM leave_requests`)

	conditions := make([]string, 0, 3)
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.ApproverID != "" {
		args = append(args, filter.ApproverID)
		conditions = append(conditions, fmt.Sprintf("approver_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")
	if filter.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	requests := make([]models.LeaveRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	return requests, nil
}

// ListByEmployee returns every request filed by the employee, newest first.
func (r *LeaveRequestRepository) ListByEmployee(ctx context.Context, employeeID string) ([]models.LeaveRequest, error) {
	return r.List(ctx, models.LeaveRequestFilter{EmployeeID: employeeID})
}

// ListPendingByApprover returns pending requests routed to the approver, newest first.
func (r *LeaveRequestRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]models.LeaveRequest, error) {
	return r.List(ctx, models.LeaveRequestFilter{
		ApproverID: approverID,
		Status:     []models.LeaveStatus{models.LeaveStatusPending},
	})
}

// UpdateLeaveDecisionParams groups the columns written by a status transition.
type UpdateLeaveDecisionParams struct {
	ID              string
	Status          models.LeaveStatus
	ApproverName    *string
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason *string
	UpdatedAt       time.Time
}

// UpdateDecision moves a pending request to a terminal status. It returns
// sql.ErrNoRows when the request is missing or no longer pending.
func (r *LeaveRequestRepository) UpdateDecision(ctx context.Context, params UpdateLeaveDecisionParams) error {
	setParts := []string{"status = :status", "updated_at = :updated_at"}
	if params.ApproverName != nil {
		setParts = append(setParts, "approver_name = :approver_name")
	}
	if params.ApprovedAt != nil {
		setParts = append(setParts, "approved_at = :approved_at")
	}
	if params.RejectedAt != nil {
		setParts = append(setParts, "rejected_at = :rejected_at")
	}
	if params.RejectionReason != nil {
		setParts = append(setParts, "rejection_reason = :rejection_reason")
	}
	query := fmt.Sprintf("UPDATE leave_requests SET %s WHERE id = :id AND status = '%s'",
		strings.Join(setParts, ", "),
		models.LeaveStatusPending,
	)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"approver_name":    params.ApproverName,
		"approved_at":      params.ApprovedAt,
		"rejected_at":      params.RejectedAt,
		"rejection_reason": params.RejectionReason,
		"updated_at":       params.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("update leave request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check leave request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
