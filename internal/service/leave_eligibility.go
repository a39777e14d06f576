package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

// VacationNoticeWorkingDays is the advance notice required for vacation leave.
const VacationNoticeWorkingDays = 5

const dateLayout = "2006-01-02"

// LeaveEligibilityValidator enforces the per-type submission rules.
type LeaveEligibilityValidator struct {
	now      func() time.Time
	location *time.Location
}

// EligibilityOption configures the validator.
type EligibilityOption func(*LeaveEligibilityValidator)

// WithEligibilityClock overrides the clock used to determine "today".
func WithEligibilityClock(now func() time.Time) EligibilityOption {
	return func(v *LeaveEligibilityValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithEligibilityLocation sets the timezone in which "today" is evaluated.
func WithEligibilityLocation(loc *time.Location) EligibilityOption {
	return func(v *LeaveEligibilityValidator) {
		if loc != nil {
			v.location = loc
		}
	}
}

// NewLeaveEligibilityValidator constructs a validator using the wall clock in UTC.
func NewLeaveEligibilityValidator(opts ...EligibilityOption) *LeaveEligibilityValidator {
	v := &LeaveEligibilityValidator{now: time.Now, location: time.UTC}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Today returns the current calendar date in the validator's location.
func (v *LeaveEligibilityValidator) Today() time.Time {
	return civilDate(v.now().In(v.location))
}

// Validate runs the rules in order and reports the first failure.
func (v *LeaveEligibilityValidator) Validate(leaveType models.LeaveType, startDate, endDate time.Time, existing []models.LeaveRequest, birthday *time.Time) models.EligibilityResult {
	today := v.Today()
	start, end := civilDate(startDate), civilDate(endDate)
	totalDays := CalendarDaySpan(start, end)

	balance := Balance(existing, leaveType, today.Year())
	if totalDays > balance.Remaining {
		return ineligible(fmt.Sprintf("Insufficient leave balance. You have %d day(s) remaining.", balance.Remaining))
	}

	switch leaveType {
	case models.LeaveTypeVacation:
		earliest := MinimumVacationStart(today)
		if start.Before(earliest) {
			return ineligible(fmt.Sprintf("Vacation leave must be filed at least %d working days in advance. Earliest start date: %s.",
				VacationNoticeWorkingDays, earliest.Format(dateLayout)))
		}
	case models.LeaveTypeBirthday:
		if birthday == nil {
			return ineligible("No birthday on file. Please contact HR to update your records before filing birthday leave.")
		}
		first, last := BirthMonthWindow(*birthday, today)
		if start.Before(first) || start.After(last) || end.Before(first) || end.After(last) {
			return ineligible(fmt.Sprintf("Birthday leave must be taken within your birth month (%s to %s).",
				first.Format(dateLayout), last.Format(dateLayout)))
		}
		if totalDays != 1 {
			return ineligible("Birthday leave must be exactly 1 day.")
		}
	}

	return models.EligibilityResult{Valid: true}
}

// MinimumVacationStart walks forward from today until the notice period of
// working days has been counted. Weekends are skipped; holidays are not modelled.
func MinimumVacationStart(today time.Time) time.Time {
	d := civilDate(today)
	counted := 0
	for counted < VacationNoticeWorkingDays {
		d = d.AddDate(0, 0, 1)
		if !isWeekend(d) {
			counted++
		}
	}
	return d
}

// BirthMonthWindow returns the first and last day of the next occurrence of the
// birth month: this year unless the month has already fully passed.
func BirthMonthWindow(birthday, today time.Time) (time.Time, time.Time) {
	month := birthday.Month()
	year := today.Year()
	if today.Month() > month {
		year++
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}

func ineligible(msg string) models.EligibilityResult {
	return models.EligibilityResult{Valid: false, Error: msg}
}
