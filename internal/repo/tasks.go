package repo

import (
	"context"
	"database/sql"
	"strings"

	"teamline/internal/domain"
)

const taskColumns = `id,project_id,title,description,status,created_by,assigned_by,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var desc, assignedBy sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.Title, &desc, &t.Status, &t.CreatedBy, &assignedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if assignedBy.Valid {
		t.AssignedBy = &assignedBy.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,status,created_by,assigned_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status, t.CreatedBy, nullableStringPtr(t.AssignedBy), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	for _, a := range t.Assignees {
		if err := r.AddAssignee(ctx, tx, t.ID, a); err != nil {
			return err
		}
	}
	return nil
}

// GetTask loads the task row plus its assignees, checklist, the owning
// project's state and embedded tickets, so callers get a complete snapshot
// in one call.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, "", err
	}
	var projectState string
	if err := r.DB.QueryRowContext(ctx, `SELECT state FROM projects WHERE id=?`, t.ProjectID).Scan(&projectState); err != nil {
		return t, "", err
	}
	if t.Assignees, err = r.ListAssignees(ctx, id); err != nil {
		return t, "", err
	}
	if t.Checklist, err = r.ListChecklist(ctx, id); err != nil {
		return t, "", err
	}
	if t.Tickets, err = r.ListTickets(ctx, id); err != nil {
		return t, "", err
	}
	return t, projectState, nil
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	ProjectID       string
	Status          string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "id IN (SELECT task_id FROM task_assignees WHERE user_id=?)")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Assignees, err = r.ListAssignees(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ProjectStates returns project id -> state for visibility snapshots.
func (r Repo) ProjectStates(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,state FROM projects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, err
		}
		res[id] = state
	}
	return res, rows.Err()
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListAssignees(ctx context.Context, taskID string) ([]domain.TaskAssignee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, COALESCE(state,'') FROM task_assignees WHERE task_id=? ORDER BY user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskAssignee
	for rows.Next() {
		var a domain.TaskAssignee
		if err := rows.Scan(&a.UserID, &a.State); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) AddAssignee(ctx context.Context, tx *sql.Tx, taskID string, a domain.TaskAssignee) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_assignees(task_id,user_id,state) VALUES (?,?,?)
ON CONFLICT(task_id,user_id) DO UPDATE SET state=excluded.state`, taskID, a.UserID, nullable(a.State))
	return err
}

func (r Repo) RemoveAssignee(ctx context.Context, tx *sql.Tx, taskID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=? AND user_id=?`, taskID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListChecklist(ctx context.Context, taskID string) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,item,is_completed FROM checklist_items WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var c domain.ChecklistItem
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Item, &c.IsCompleted); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertChecklistItem(ctx context.Context, tx *sql.Tx, c domain.ChecklistItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(id,task_id,item,is_completed) VALUES (?,?,?,?)`,
		c.ID, c.TaskID, c.Item, c.IsCompleted)
	return err
}

func (r Repo) SetChecklistItemDone(ctx context.Context, tx *sql.Tx, id string, done bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET is_completed=? WHERE id=?`, done, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
