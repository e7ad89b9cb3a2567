package store

import (
	"context"

	"biashara-service/internal/models"
)

// CreateNotification appends a notification for a user
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.db.GetContext(ctx, n, `
		INSERT INTO notifications (user_id, type, title, message, priority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		n.UserID, n.Type, n.Title, n.Message, n.Priority)
}

// ListNotifications retrieves a user's notifications, newest first
func (s *Store) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	query := "SELECT * FROM notifications WHERE user_id = $1"
	if unreadOnly {
		query += " AND read = FALSE"
	}
	query += " ORDER BY created_at DESC LIMIT $2 OFFSET $3"

	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications, query, userID, limit, offset)
	return notifications, err
}

// CountUnreadNotifications counts a user's unread notifications
func (s *Store) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE", userID)
	return count, err
}

// MarkNotificationRead flags a notification as read. Only the owner can
// flip the flag.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2",
		notificationID, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "notification", ID: notificationID}
	}
	return nil
}

// MarkAllNotificationsRead flags all of a user's notifications as read
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE", userID)
	return err
}
