package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

func TestLeaveCatalogLimits(t *testing.T) {
	catalog := LeaveCatalog()
	require.Len(t, catalog, 5)

	expected := map[models.LeaveType]int{
		models.LeaveTypeVacation:    10,
		models.LeaveTypeSick:        10,
		models.LeaveTypeEmergency:   3,
		models.LeaveTypeBirthday:    1,
		models.LeaveTypeBereavement: 5,
	}
	for _, entry := range catalog {
		assert.Equal(t, expected[entry.Type], entry.AnnualLimitDays, entry.Type)
		assert.Equal(t, expected[entry.Type], AnnualLimit(entry.Type))
		assert.True(t, entry.Type.Valid())
	}
	assert.Equal(t, 0, AnnualLimit("sabbatical"))
	assert.False(t, IsKnownLeaveType("sabbatical"))
}

func TestLeaveCatalogReturnsCopy(t *testing.T) {
	catalog := LeaveCatalog()
	catalog[0].AnnualLimitDays = 99
	assert.Equal(t, 10, AnnualLimit(models.LeaveTypeVacation))
}

func TestCalendarDaySpanIncludesWeekends(t *testing.T) {
	assert.Equal(t, 1, CalendarDaySpan(civil(2026, 6, 10), civil(2026, 6, 10)))
	// Friday to Monday
	assert.Equal(t, 4, CalendarDaySpan(civil(2026, 10, 16), civil(2026, 10, 19)))
	assert.Equal(t, 1, CalendarDaySpan(civil(2026, 3, 1).Add(23*time.Hour), civil(2026, 3, 1)))
}
