package dto

// NotificationQuery mirrors the inbox listing filters.
type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
}
