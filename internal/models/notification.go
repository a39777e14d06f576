package models

import "time"

// NotificationKind enumerates the notifications emitted by the leave workflow.
type NotificationKind string

const (
	NotificationLeaveRequest  NotificationKind = "leave_request"
	NotificationLeaveApproved NotificationKind = "leave_approved"
	NotificationLeaveRejected NotificationKind = "leave_rejected"
)

// NotificationMetadata links a notification back to its leave request.
type NotificationMetadata struct {
	LeaveRequestID string    `json:"leaveRequestId"`
	EmployeeID     string    `json:"employeeId,omitempty"`
	LeaveType      LeaveType `json:"leaveType,omitempty"`
}

// Notification is an inbox entry addressed to a single user.
type Notification struct {
	ID              string               `db:"id" json:"id"`
	RecipientUserID string               `db:"recipient_user_id" json:"recipientUserId"`
	Kind            NotificationKind     `db:"kind" json:"kind"`
	Title           string               `db:"title" json:"title"`
	Message         string               `db:"message" json:"message"`
	Metadata        NotificationMetadata `db:"-" json:"metadata"`
	RawMetadata     []byte               `db:"metadata" json:"-"`
	ReadAt          *time.Time           `db:"read_at" json:"readAt,omitempty"`
	CreatedAt       time.Time            `db:"created_at" json:"createdAt"`
}
