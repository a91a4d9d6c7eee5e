package repo

import (
	"context"
	"database/sql"
	"strings"

	"teamline/internal/domain"
)

const projectColumns = `id,name,description,state,created_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := scan(&p.ID, &p.Name, &desc, &p.State, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO projects(id,name,description,state,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.State, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return p, err
	}
	participants, err := r.ListParticipants(ctx, id)
	if err != nil {
		return p, err
	}
	p.Participants = participants
	return p, nil
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectState(ctx context.Context, tx *sql.Tx, id, state string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET state=? WHERE id=?`, state, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListParticipants(ctx context.Context, projectID string) ([]domain.Participant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,email,role_in_project FROM project_participants WHERE project_id=? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.Email, &p.RoleInProject); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountProjectManagersTx counts project-manager participants, excluding one
// user when replacing their participation.
func (r Repo) CountProjectManagersTx(ctx context.Context, tx *sql.Tx, projectID, excludeUserID string) (int, error) {
	query := `SELECT count(*) FROM project_participants WHERE project_id=? AND role_in_project=?`
	args := []any{projectID, domain.ProjectManager}
	if excludeUserID != "" {
		query += ` AND user_id<>?`
		args = append(args, excludeUserID)
	}
	var n int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) UpsertParticipant(ctx context.Context, tx *sql.Tx, projectID string, p domain.Participant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_participants(project_id,user_id,email,role_in_project) VALUES (?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET email=excluded.email, role_in_project=excluded.role_in_project`,
		projectID, p.UserID, strings.ToLower(p.Email), p.RoleInProject)
	return err
}

func (r Repo) RemoveParticipant(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_participants WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
