package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"taskboard/internal/domain"
)

func encodeAutomation(a domain.Automation) (conditions string, actions string, err error) {
	condBytes, err := json.Marshal(a.Trigger.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("marshal conditions: %w", err)
	}
	actionBytes, err := json.Marshal(a.Actions)
	if err != nil {
		return "", "", fmt.Errorf("marshal actions: %w", err)
	}
	return string(condBytes), string(actionBytes), nil
}

func scanAutomationRow(scan func(dest ...any) error) (domain.Automation, error) {
	var a domain.Automation
	var conditions, actions sql.NullString
	var active int
	err := scan(&a.ID, &a.ProjectID, &a.Name, &a.CreatedBy, &a.Trigger.Type, &conditions, &actions, &active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if conditions.Valid && conditions.String != "" {
		if err := json.Unmarshal([]byte(conditions.String), &a.Trigger.Conditions); err != nil {
			return a, fmt.Errorf("decode conditions for automation %s: %w", a.ID, err)
		}
	}
	if actions.Valid && actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &a.Actions); err != nil {
			return a, fmt.Errorf("decode actions for automation %s: %w", a.ID, err)
		}
	}
	a.IsActive = active != 0
	return a, nil
}

const automationCols = `id,project_id,name,created_by,trigger_type,conditions_json,actions_json,is_active,created_at`

func (r Repo) InsertAutomation(ctx context.Context, a domain.Automation) error {
	conditions, actions, err := encodeAutomation(a)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO automations(`+automationCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.Name, a.CreatedBy, a.Trigger.Type, conditions, actions, boolInt(a.IsActive), a.CreatedAt)
	return err
}

func (r Repo) UpdateAutomation(ctx context.Context, a domain.Automation) error {
	conditions, actions, err := encodeAutomation(a)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE automations SET name=?, trigger_type=?, conditions_json=?, actions_json=?, is_active=? WHERE id=?`,
		a.Name, a.Trigger.Type, conditions, actions, boolInt(a.IsActive), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAutomation(ctx context.Context, id string) (domain.Automation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+automationCols+` FROM automations WHERE id=?`, id)
	return scanAutomationRow(row.Scan)
}

func (r Repo) ListAutomations(ctx context.Context, projectID string) ([]domain.Automation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+automationCols+` FROM automations WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Automation
	for rows.Next() {
		a, err := scanAutomationRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

// ListActiveAutomations returns active rules for one project and trigger type
// in creation order. First created fires first; there is no priority field.
func (r Repo) ListActiveAutomations(ctx context.Context, projectID, triggerType string) ([]domain.Automation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+automationCols+` FROM automations WHERE project_id=? AND trigger_type=? AND is_active=1 ORDER BY created_at ASC, id ASC`,
		projectID, triggerType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Automation
	for rows.Next() {
		a, err := scanAutomationRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAutomation(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM automations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
