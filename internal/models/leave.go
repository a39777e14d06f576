package models

import "time"

// LeaveType enumerates the leave categories employees can file.
type LeaveType string

const (
	LeaveTypeVacation    LeaveType = "vacation"
	LeaveTypeSick        LeaveType = "sick"
	LeaveTypeEmergency   LeaveType = "emergency"
	LeaveTypeBirthday    LeaveType = "birthday"
	LeaveTypeBereavement LeaveType = "bereavement"
)

// Valid reports whether the type is one of the known categories.
func (t LeaveType) Valid() bool {
	switch t {
	case LeaveTypeVacation, LeaveTypeSick, LeaveTypeEmergency, LeaveTypeBirthday, LeaveTypeBereavement:
		return true
	}
	return false
}

// LeaveStatus captures the lifecycle state of a leave request.
type LeaveStatus string

const (
	LeaveStatusPending   LeaveStatus = "pending"
	LeaveStatusApproved  LeaveStatus = "approved"
	LeaveStatusRejected  LeaveStatus = "rejected"
	LeaveStatusCancelled LeaveStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from the status.
func (s LeaveStatus) IsTerminal() bool {
	return s != LeaveStatusPending
}

// CountsAgainstBalance reports whether requests in this status consume allotment.
func (s LeaveStatus) CountsAgainstBalance() bool {
	return s == LeaveStatusApproved || s == LeaveStatusPending
}

// LeaveTypeCatalogEntry describes a leave type and its yearly allotment.
type LeaveTypeCatalogEntry struct {
	Type            LeaveType `json:"type"`
	Label           string    `json:"label"`
	AnnualLimitDays int       `json:"annualLimitDays"`
}

// LeaveRequest is a single leave filing and its disposition.
type LeaveRequest struct {
	ID              string      `db:"id" json:"id"`
	EmployeeID      string      `db:"employee_id" json:"employeeId"`
	EmployeeName    string      `db:"employee_name" json:"employeeName"`
	LeaveType       LeaveType   `db:"leave_type" json:"leaveType"`
	StartDate       time.Time   `db:"start_date" json:"startDate"`
	EndDate         time.Time   `db:"end_date" json:"endDate"`
	TotalDays       int         `db:"total_days" json:"totalDays"`
	Reason          string      `db:"reason" json:"reason"`
	Status          LeaveStatus `db:"status" json:"status"`
	ApproverID      *string     `db:"approver_id" json:"approverId"`
	ApproverName    *string     `db:"approver_name" json:"approverName,omitempty"`
	ApprovedAt      *time.Time  `db:"approved_at" json:"approvedAt,omitempty"`
	RejectedAt      *time.Time  `db:"rejected_at" json:"rejectedAt,omitempty"`
	RejectionReason *string     `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// LeaveRequestFilter constrains listing queries.
type LeaveRequestFilter struct {
	EmployeeID string
	ApproverID string
	Status     []LeaveStatus
	Limit      int
}

// LeaveBalance summarises allotment usage for one leave type in one year.
type LeaveBalance struct {
	Type      LeaveType `json:"type"`
	Total     int       `json:"total"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
}

// LeaveApproverEntry maps a leave type to the approver responsible for it.
type LeaveApproverEntry struct {
	LeaveType  LeaveType `json:"leaveType"`
	ApproverID *string   `json:"approverId"`
}

// LeaveApproverAssignment stores the per-type approvers for one employee.
type LeaveApproverAssignment struct {
	EmployeeID  string               `db:"employee_id" json:"employeeId"`
	Assignments []LeaveApproverEntry `db:"-" json:"assignments"`
	RawEntries  []byte               `db:"assignments" json:"-"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updatedAt"`
	UpdatedBy   string               `db:"updated_by" json:"updatedBy"`
}

// EligibilityResult is the outcome of a submission rule check.
type EligibilityResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
