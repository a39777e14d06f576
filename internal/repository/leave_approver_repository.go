package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

// LeaveApproverRepository persists per-employee approver assignments.
type LeaveApproverRepository struct {
	db *sqlx.DB
}

// NewLeaveApproverRepository constructs the repository.
func NewLeaveApproverRepository(db *sqlx.DB) *LeaveApproverRepository {
	return &LeaveApproverRepository{db: db}
}

// GetByEmployee returns the stored assignment. Missing rows surface as sql.ErrNoRows.
func (r *LeaveApproverRepository) GetByEmployee(ctx context.Context, employeeID string) (*models.LeaveApproverAssignment, error) {
	const query = `SELECT employee_id, assignments, updated_at, updated_by FROM leave_approver_assignments WHERE employee_id = $1`
	var assignment models.LeaveApproverAssignment
	if err := r.db.GetContext(ctx, &assignment, query, employeeID); err != nil {
		return nil, err
	}
	if len(assignment.RawEntries) > 0 {
		if err := json.Unmarshal(assignment.RawEntries, &assignment.Assignments); err != nil {
			return nil, fmt.Errorf("decode leave approver assignments: %w", err)
		}
	}
	return &assignment, nil
}

// Upsert replaces the full assignment for the employee.
func (r *LeaveApproverRepository) Upsert(ctx context.Context, assignment *models.LeaveApproverAssignment) error {
	raw, err := json.Marshal(assignment.Assignments)
	if err != nil {
		return fmt.Errorf("encode leave approver assignments: %w", err)
	}
	assignment.RawEntries = raw
	if assignment.UpdatedAt.IsZero() {
		assignment.UpdatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO leave_approver_assignments (employee_id, assignments, updated_at, updated_by)
		VALUES (:employee_id, :assignments, :updated_at, :updated_by)
		ON CONFLICT (employee_id) DO UPDATE
		SET assignments = EXCLUDED.assignments,
		    updated_at = EXCLUDED.updated_at,
		    updated_by = EXCLUDED.updated_by`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("upsert leave approver assignment: %w", err)
	}
	return nil
}
