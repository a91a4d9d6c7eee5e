package repo

import (
	"context"
	"database/sql"
	"strings"

	"teamline/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,from_email,audience,subject,message,created_at) VALUES (?,?,?,?,?,?)`,
		n.ID, n.FromEmail, string(n.Audience), n.Subject, nullable(n.Message), n.CreatedAt)
	if err != nil {
		return err
	}
	for _, rec := range n.Recipients {
		if _, err := tx.ExecContext(ctx, `INSERT INTO notification_recipients(notification_id,email,state) VALUES (?,?,?)
ON CONFLICT(notification_id,email) DO NOTHING`, n.ID, strings.ToLower(rec.Email), "unread"); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	var n domain.Notification
	var message sql.NullString
	var audience string
	err := r.DB.QueryRowContext(ctx, `SELECT id,from_email,audience,subject,message,created_at FROM notifications WHERE id=?`, id).
		Scan(&n.ID, &n.FromEmail, &audience, &n.Subject, &message, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Audience = domain.Audience(audience)
	if message.Valid {
		n.Message = message.String
	}
	n.Recipients, err = r.listRecipients(ctx, id)
	return n, err
}

func (r Repo) listRecipients(ctx context.Context, notificationID string) ([]domain.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT email,state FROM notification_recipients WHERE notification_id=? ORDER BY email`, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.Email, &rec.State); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListNotifications returns every notification with recipients attached,
// newest first. Visibility narrowing happens in the policy layer, not here.
func (r Repo) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,from_email,audience,subject,message,created_at FROM notifications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var message sql.NullString
		var audience string
		if err := rows.Scan(&n.ID, &n.FromEmail, &audience, &n.Subject, &message, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Audience = domain.Audience(audience)
		if message.Valid {
			n.Message = message.String
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Recipients, err = r.listRecipients(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) MarkNotificationRead(ctx context.Context, tx *sql.Tx, notificationID, email string) error {
	res, err := tx.ExecContext(ctx, `UPDATE notification_recipients SET state='read' WHERE notification_id=? AND email=?`,
		notificationID, strings.ToLower(email))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
