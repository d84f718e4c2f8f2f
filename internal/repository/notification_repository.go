package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/queueease/internal/model"
)

const notificationColumns = "id, target_user_id, message, created_at"

// NotificationRepo persists rows of the `notifications` table.
type NotificationRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{DB: db, now: utcNow}
}

// InsertNotification stores a notification outside any ticket transaction.
func (r *NotificationRepo) InsertNotification(ctx context.Context, target *uint64, message string) (model.Notification, error) {
	return insertNotification(ctx, r.DB, r.now(), target, message)
}

// NotificationsFor returns notifications addressed to userID and
// broadcasts, newest first.
func (r *NotificationRepo) NotificationsFor(ctx context.Context, userID uint64, limit int) ([]model.Notification, error) {
	return queryNotifications(ctx, r.DB,
		"SELECT "+notificationColumns+" FROM notifications WHERE target_user_id=? OR target_user_id IS NULL ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, clampLimit(limit))
}

// AllNotifications returns every notification, newest first.
func (r *NotificationRepo) AllNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	return queryNotifications(ctx, r.DB,
		"SELECT "+notificationColumns+" FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?",
		clampLimit(limit))
}

func insertNotification(ctx context.Context, q dbtx, now time.Time, target *uint64, message string) (model.Notification, error) {
	var tgt any
	if target != nil {
		tgt = *target
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO notifications (target_user_id, message, created_at) VALUES (?,?,?)",
		tgt, message, now)
	if err != nil {
		return model.Notification{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Notification{}, err
	}
	n := model.Notification{ID: uint64(id), Message: message, CreatedAt: now}
	if target != nil {
		v := *target
		n.TargetUserID = &v
	}
	return n, nil
}

func queryNotifications(ctx context.Context, q dbtx, query string, args ...any) ([]model.Notification, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var (
			n      model.Notification
			target sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &target, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		if target.Valid {
			v := uint64(target.Int64)
			n.TargetUserID = &v
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
