package dto

import "github.com/noah-isme/hris-leave-api/internal/models"

// MaxLeaveReasonLength bounds free-text reasons on filings and rejections.
const MaxLeaveReasonLength = 1000

// SubmitLeaveRequest is the payload employees send to file leave. Dates use YYYY-MM-DD.
type SubmitLeaveRequest struct {
	LeaveType models.LeaveType `json:"leaveType" validate:"required,oneof=vacation sick emergency birthday bereavement"`
	StartDate string           `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string           `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason    string           `json:"reason" validate:"required,max=1000"`
}

// RejectLeaveRequest carries the optional rejection reason.
type RejectLeaveRequest struct {
	Reason string `json:"reason"`
}

// LeaveApproverEntryRequest assigns one leave type. A null or empty approverId clears it.
type LeaveApproverEntryRequest struct {
	LeaveType  models.LeaveType `json:"leaveType" validate:"required"`
	ApproverID *string          `json:"approverId"`
}

// SetLeaveApproversRequest replaces the full approver mapping of an employee.
type SetLeaveApproversRequest struct {
	Assignments []LeaveApproverEntryRequest `json:"assignments" validate:"dive"`
}

// LeaveExportFormat selects the rendering of an exported leave history.
type LeaveExportFormat string

const (
	LeaveExportCSV LeaveExportFormat = "csv"
	LeaveExportPDF LeaveExportFormat = "pdf"
)
