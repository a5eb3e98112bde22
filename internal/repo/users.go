package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"taskboard/internal/domain"
)

const userCols = `id,name,email,badges_json,created_at`

func scanUserRow(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var badges sql.NullString
	err := scan(&u.ID, &u.Name, &u.Email, &badges, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if badges.Valid && badges.String != "" {
		if err := json.Unmarshal([]byte(badges.String), &u.Badges); err != nil {
			return u, fmt.Errorf("decode badges for user %s: %w", u.ID, err)
		}
	}
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	badges, err := marshalBadges(u.Badges)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO users(`+userCols+`) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, u.Email, badges, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id)
	return scanUserRow(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=?`, email)
	return scanUserRow(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUserRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, nil
}

// UpdateUserBadges replaces the badge set. Badges are only ever added by the
// engine; callers grow the slice, never shrink it.
func (r Repo) UpdateUserBadges(ctx context.Context, tx *sql.Tx, userID string, badges []string) error {
	payload, err := marshalBadges(badges)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE users SET badges_json=? WHERE id=?`, payload, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalBadges(badges []string) (any, error) {
	if len(badges) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(badges)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
