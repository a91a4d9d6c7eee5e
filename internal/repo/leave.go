package repo

import (
	"context"
	"database/sql"
	"strings"

	"teamline/internal/domain"
)

const leaveColumns = `id,user_id,leave_type,start_date,end_date,reason,status,decided_by,decided_at,created_at`

func scanLeave(scan func(dest ...any) error) (domain.Leave, error) {
	var l domain.Leave
	var reason, decidedBy, decidedAt sql.NullString
	err := scan(&l.ID, &l.UserID, &l.LeaveType, &l.StartDate, &l.EndDate, &reason, &l.Status, &decidedBy, &decidedAt, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if reason.Valid {
		l.Reason = reason.String
	}
	if decidedBy.Valid {
		l.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		l.DecidedAt = &decidedAt.String
	}
	return l, nil
}

func (r Repo) InsertLeave(ctx context.Context, tx *sql.Tx, l domain.Leave) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leave_requests(id,user_id,leave_type,start_date,end_date,reason,status,decided_by,decided_at,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.UserID, l.LeaveType, l.StartDate, l.EndDate, nullable(l.Reason), l.Status, nullableStringPtr(l.DecidedBy), nullableStringPtr(l.DecidedAt), l.CreatedAt)
	return err
}

func (r Repo) GetLeave(ctx context.Context, id string) (domain.Leave, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id=?`, id)
	return scanLeave(row.Scan)
}

func (r Repo) GetLeaveTx(ctx context.Context, tx *sql.Tx, id string) (domain.Leave, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id=?`, id)
	return scanLeave(row.Scan)
}

type LeaveFilters struct {
	UserID string
	Status string
	Type   string
}

func (r Repo) ListLeave(ctx context.Context, f LeaveFilters) ([]domain.Leave, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "leave_type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Leave
	for rows.Next() {
		l, err := scanLeave(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLeaveDecision(ctx context.Context, tx *sql.Tx, id, status, decidedBy, decidedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE leave_requests SET status=?, decided_by=?, decided_at=? WHERE id=?`, status, decidedBy, decidedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApprovedLeaveDays sums the day spans of approved leave of one type for a
// user, for allowance accounting.
func (r Repo) ApprovedLeaveDays(ctx context.Context, tx *sql.Tx, userID, leaveType string) (int, error) {
	query := `SELECT COALESCE(SUM(julianday(end_date)-julianday(start_date)+1),0) FROM leave_requests WHERE user_id=? AND leave_type=? AND status='approved'`
	var days float64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, userID, leaveType).Scan(&days)
	} else {
		err = r.DB.QueryRowContext(ctx, query, userID, leaveType).Scan(&days)
	}
	return int(days), err
}
