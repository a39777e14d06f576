package models

import "time"

// EmployeeProfile is the slice of the employee directory the leave workflow reads.
type EmployeeProfile struct {
	ID       string     `db:"id" json:"id"`
	FullName string     `db:"full_name" json:"fullName"`
	Birthday *time.Time `db:"birthday" json:"birthday,omitempty"`
}
