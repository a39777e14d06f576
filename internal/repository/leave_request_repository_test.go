package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

var leaveRequestRowColumns = []string{"id", "employee_id", "employee_name", "leave_type", "start_date", "end_date", "total_days", "reason", "status",
	"approver_id", "approver_name", "approved_at", "rejected_at", "rejection_reason", "created_at", "updated_at"}

func newLeaveRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLeaveRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leave_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	approver := "mgr-1"
	start := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	req := &models.LeaveRequest{
		EmployeeID:   "emp-1",
		EmployeeName: "Dana Cruz",
		LeaveType:    models.LeaveTypeSick,
		StartDate:    start,
		EndDate:      start,
		TotalDays:    1,
		Reason:       "flu",
		ApproverID:   &approver,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	require.NotEmpty(t, req.ID)
	require.Equal(t, models.LeaveStatusPending, req.Status)
	require.Equal(t, req.CreatedAt, req.UpdatedAt)

	now := time.Now()
	rows := sqlmock.NewRows(leaveRequestRowColumns).
		AddRow(req.ID, "emp-1", "Dana Cruz", "sick", start, start, 1, "flu", "pending", "mgr-1", nil, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, employee_id, employee_name")).
		WithArgs(req.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, models.LeaveTypeSick, found.LeaveType)
	require.NotNil(t, found.ApproverID)
	require.Equal(t, "mgr-1", *found.ApproverID)
	require.Nil(t, found.ApproverName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRequestRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, employee_id")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLeaveRequestRepositoryListPendingByApprover(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRequestRepository(db)
	now := time.Now()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(leaveRequestRowColumns).
		AddRow("lr-2", "emp-2", "Eli Park", "vacation", day, day, 1, "trip", "pending", "mgr-1", nil, nil, nil, nil, now, now).
		AddRow("lr-1", "emp-1", "Dana Cruz", "sick", day, day, 1, "flu", "pending", "mgr-1", nil, nil, nil, nil, now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(`(?s)SELECT id, employee_id.* FROM leave_requests WHERE approver_id = \$1 AND status IN \(\$2\) ORDER BY created_at DESC`).
		WithArgs("mgr-1", models.LeaveStatusPending).
		WillReturnRows(rows)

	list, err := repo.ListPendingByApprover(context.Background(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "lr-2", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRequestRepositoryListByEmployee(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRequestRepository(db)
	mock.ExpectQuery(`FROM leave_requests WHERE employee_id = \$1 ORDER BY created_at DESC`).
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows(leaveRequestRowColumns))

	list, err := repo.ListByEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRequestRepositoryUpdateDecisionGuardsPending(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRequestRepository(db)
	now := time.Now().UTC()
	name := "Morgan Lee"

	mock.ExpectExec(`UPDATE leave_requests SET status = \?, updated_at = \?, approver_name = \?, approved_at = \? WHERE id = \? AND status = 'pending'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateDecision(context.Background(), UpdateLeaveDecisionParams{
		ID:           "lr-1",
		Status:       models.LeaveStatusApproved,
		ApproverName: &name,
		ApprovedAt:   &now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leave_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateDecision(context.Background(), UpdateLeaveDecisionParams{
		ID:        "lr-1",
		Status:    models.LeaveStatusCancelled,
		UpdatedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
