package storage

import (
	"context"
	"time"

	"estatecron/internal/domain"
)

// HasNotificationSince reports whether userID has a notification of type typ
// created at or after since, read or unread.
func (s *Store) HasNotificationSince(ctx context.Context, userID string, typ domain.NotificationType, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT COUNT(1) FROM notifications
WHERE user_id = ? AND type = ? AND created_at >= ?`),
		userID, string(typ), ms(since)).Scan(&n)
	if err != nil {
		return false, wrap("notifications.has_since", err)
	}
	return n > 0, nil
}

// InsertNotification stores n unless one of the same user and type already
// exists for the same UTC day. It reports whether a row was written.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) (bool, error) {
	payload := string(n.Payload)
	if payload == "" {
		payload = "{}"
	}
	res, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO notifications(id, user_id, type, payload, is_read, created_at, day_bucket)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(user_id, type, day_bucket) DO NOTHING`),
		n.ID, n.UserID, string(n.Type), payload, n.Read, ms(n.CreatedAt), domain.DayBucket(n.CreatedAt))
	if err != nil {
		return false, wrap("notifications.insert", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrap("notifications.insert", err)
	}
	return affected > 0, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT id, user_id, type, payload, is_read, created_at
FROM notifications WHERE user_id = ?
ORDER BY created_at DESC, id ASC`), userID)
	if err != nil {
		return nil, wrap("notifications.list", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n       domain.Notification
			typ     string
			payload []byte
			at      int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &payload, &n.Read, &at); err != nil {
			return nil, wrap("notifications.list", err)
		}
		n.Type = domain.NotificationType(typ)
		n.Payload = payload
		n.CreatedAt = fromMS(at)
		out = append(out, n)
	}
	return out, wrap("notifications.list", rows.Err())
}
