package repo

import (
	"context"
	"database/sql"

	"teamline/internal/domain"
)

const ticketColumns = `id,task_id,issue_title,description,assigned_to,priority,status,tag,created_by,created_at,updated_at`

func scanTicket(scan func(dest ...any) error) (domain.Ticket, error) {
	var k domain.Ticket
	var desc, assignedTo, tag sql.NullString
	err := scan(&k.ID, &k.TaskID, &k.IssueTitle, &desc, &assignedTo, &k.Priority, &k.Status, &tag, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt)
	if err == sql.ErrNoRows {
		return k, ErrNotFound
	}
	if err != nil {
		return k, err
	}
	if desc.Valid {
		k.Description = desc.String
	}
	if assignedTo.Valid {
		k.AssignedTo = &assignedTo.String
	}
	if tag.Valid {
		k.Tag = tag.String
	}
	return k, nil
}

func (r Repo) InsertTicket(ctx context.Context, tx *sql.Tx, k domain.Ticket) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tickets(id,task_id,issue_title,description,assigned_to,priority,status,tag,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		k.ID, k.TaskID, k.IssueTitle, nullable(k.Description), nullableStringPtr(k.AssignedTo), k.Priority, k.Status, nullable(k.Tag), k.CreatedBy, k.CreatedAt, k.UpdatedAt)
	return err
}

func (r Repo) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
	return scanTicket(row.Scan)
}

func (r Repo) ListTickets(ctx context.Context, taskID string) ([]domain.Ticket, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE task_id=? ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ticket
	for rows.Next() {
		k, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTicket(ctx context.Context, tx *sql.Tx, k domain.Ticket) error {
	res, err := tx.ExecContext(ctx, `UPDATE tickets SET issue_title=?, description=?, assigned_to=?, priority=?, status=?, tag=?, updated_at=? WHERE id=?`,
		k.IssueTitle, nullable(k.Description), nullableStringPtr(k.AssignedTo), k.Priority, k.Status, nullable(k.Tag), k.UpdatedAt, k.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTicket(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
