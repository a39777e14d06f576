package service

import (
	"time"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

var leaveCatalog = []models.LeaveTypeCatalogEntry{
	{Type: models.LeaveTypeVacation, Label: "Vacation Leave", AnnualLimitDays: 10},
	{Type: models.LeaveTypeSick, Label: "Sick Leave", AnnualLimitDays: 10},
	{Type: models.LeaveTypeEmergency, Label: "Emergency Leave", AnnualLimitDays: 3},
	{Type: models.LeaveTypeBirthday, Label: "Birthday Leave", AnnualLimitDays: 1},
	{Type: models.LeaveTypeBereavement, Label: "Bereavement Leave", AnnualLimitDays: 5},
}

// LeaveCatalog returns the fixed leave types in display order.
func LeaveCatalog() []models.LeaveTypeCatalogEntry {
	out := make([]models.LeaveTypeCatalogEntry, len(leaveCatalog))
	copy(out, leaveCatalog)
	return out
}

// LookupLeaveType returns the catalog entry for the type.
func LookupLeaveType(t models.LeaveType) (models.LeaveTypeCatalogEntry, bool) {
	for _, entry := range leaveCatalog {
		if entry.Type == t {
			return entry, true
		}
	}
	return models.LeaveTypeCatalogEntry{}, false
}

// IsKnownLeaveType reports whether the type exists in the catalog.
func IsKnownLeaveType(t models.LeaveType) bool {
	_, ok := LookupLeaveType(t)
	return ok
}

// AnnualLimit returns the yearly allotment for the type, or 0 when unknown.
func AnnualLimit(t models.LeaveType) int {
	entry, _ := LookupLeaveType(t)
	return entry.AnnualLimitDays
}

// civilDate drops the clock part, keeping the calendar date as midnight UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalendarDaySpan counts the days in [start, end] inclusive, weekends included.
func CalendarDaySpan(start, end time.Time) int {
	s, e := civilDate(start), civilDate(end)
	return int(e.Sub(s).Hours()/24) + 1
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
