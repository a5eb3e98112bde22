package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskboard/internal/domain"
)

const notificationCols = `id,user_id,type,message,related_project,related_task,is_read,created_at`

func scanNotificationRow(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var relProject, relTask sql.NullString
	var isRead int
	err := scan(&n.ID, &n.UserID, &n.Type, &n.Message, &relProject, &relTask, &isRead, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if relProject.Valid {
		n.RelatedProject = relProject.String
	}
	if relTask.Valid {
		n.RelatedTask = relTask.String
	}
	n.IsRead = isRead != 0
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO notifications(`+notificationCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Message, nullable(n.RelatedProject), nullable(n.RelatedTask), boolInt(n.IsRead), n.CreatedAt)
	return err
}

type NotificationFilters struct {
	UserID     string
	UnreadOnly bool
	Type       string
	Limit      int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.UnreadOnly {
		clauses = append(clauses, "is_read=0")
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + notificationCols + ` FROM notifications ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotificationRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, nil
}

func (r Repo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id=? AND is_read=0`, userID).Scan(&count)
	return count, err
}

// MarkNotificationsRead marks the given notifications read, scoped to the
// owner so one user cannot touch another's notifications.
func (r Repo) MarkNotificationsRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id IN (`+placeholders+`) AND user_id=?`, args...)
	return err
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE user_id=?`, userID)
	return err
}
