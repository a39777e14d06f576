package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hris-leave-api/internal/models"
)

// NotificationRepository stores user inbox notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification for its recipient.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}
	n.RawMetadata = raw

	const query = `INSERT INTO notifications (id, recipient_user_id, kind, title, message, metadata, read_at, created_at)
	VALUES (:id, :recipient_user_id, :kind, :title, :message, :metadata, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the newest notifications for a user.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, recipient_user_id, kind, title, message, metadata, read_at, created_at
	FROM notifications WHERE recipient_user_id = $1`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	items := make([]models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	for i := range items {
		if len(items[i].RawMetadata) == 0 {
			continue
		}
		if err := json.Unmarshal(items[i].RawMetadata, &items[i].Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
	}
	return items, nil
}

// MarkRead stamps read_at on a notification owned by the user. It returns
// sql.ErrNoRows when no such notification exists.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	const query = `UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND recipient_user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
