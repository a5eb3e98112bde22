package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskboard/internal/domain"
)

// Member roles.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	if m.Role == "" {
		m.Role = RoleEditor
	}
	if m.AddedAt == "" {
		m.AddedAt = time.Now().UTC().Format(time.RFC3339)
	}
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO project_members(project_id,user_id,role,added_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, m.Role, m.AddedAt)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, projectID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMemberRole(ctx context.Context, projectID, userID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

func (r Repo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	_, err := r.GetMemberRole(ctx, projectID, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) IsOwner(ctx context.Context, projectID, userID string) (bool, error) {
	role, err := r.GetMemberRole(ctx, projectID, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == RoleOwner, nil
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,role,added_at FROM project_members WHERE project_id=? ORDER BY added_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// --- invites ---

func (r Repo) InsertInvite(ctx context.Context, inv domain.Invite) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO project_invites(id,project_id,email,token,expires_at,created_at) VALUES (?,?,?,?,?,?)`,
		inv.ID, inv.ProjectID, inv.Email, inv.Token, inv.ExpiresAt, inv.CreatedAt)
	return err
}

func (r Repo) GetInviteByToken(ctx context.Context, token string) (domain.Invite, error) {
	var inv domain.Invite
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,email,token,expires_at,created_at FROM project_invites WHERE token=?`, token).
		Scan(&inv.ID, &inv.ProjectID, &inv.Email, &inv.Token, &inv.ExpiresAt, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	return inv, err
}

func (r Repo) DeleteInvite(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM project_invites WHERE id=?`, id)
	return err
}
