package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

func TestNotificationRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{
		RecipientUserID: "mgr-1",
		Kind:            models.NotificationLeaveRequest,
		Title:           "New leave request",
		Message:         "Dana Cruz filed sick leave",
		Metadata:        models.NotificationMetadata{LeaveRequestID: "lr-1", EmployeeID: "emp-1", LeaveType: models.LeaveTypeSick},
	}
	require.NoError(t, repo.Create(context.Background(), n))
	require.NotEmpty(t, n.ID)
	require.JSONEq(t, `{"leaveRequestId":"lr-1","employeeId":"emp-1","leaveType":"sick"}`, string(n.RawMetadata))

	rows := sqlmock.NewRows([]string{"id", "recipient_user_id", "kind", "title", "message", "metadata", "read_at", "created_at"}).
		AddRow(n.ID, "mgr-1", "leave_request", n.Title, n.Message, n.RawMetadata, nil, time.Now())
	mock.ExpectQuery(`FROM notifications WHERE recipient_user_id = \$1 AND read_at IS NULL ORDER BY created_at DESC LIMIT 50`).
		WithArgs("mgr-1").
		WillReturnRows(rows)

	items, err := repo.ListByRecipient(context.Background(), "mgr-1", true, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "lr-1", items[0].Metadata.LeaveRequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read_at")).
		WithArgs("n-1", "mgr-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRead(context.Background(), "n-1", "mgr-1", now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read_at")).
		WithArgs("n-2", "mgr-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkRead(context.Background(), "n-2", "mgr-1", now), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
