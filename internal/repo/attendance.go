package repo

import (
	"context"
	"database/sql"
	"strings"

	"teamline/internal/domain"
)

const attendanceColumns = `id,user_id,date,work_mode,approval_status,approved_by,created_at`

func scanAttendance(scan func(dest ...any) error) (domain.Attendance, error) {
	var a domain.Attendance
	var approvedBy sql.NullString
	err := scan(&a.ID, &a.UserID, &a.Date, &a.WorkMode, &a.ApprovalStatus, &approvedBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if approvedBy.Valid {
		a.ApprovedBy = &approvedBy.String
	}
	return a, nil
}

func (r Repo) InsertAttendance(ctx context.Context, tx *sql.Tx, a domain.Attendance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attendance(id,user_id,date,work_mode,approval_status,approved_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Date, a.WorkMode, a.ApprovalStatus, nullableStringPtr(a.ApprovedBy), a.CreatedAt)
	return err
}

func (r Repo) GetAttendance(ctx context.Context, id string) (domain.Attendance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id=?`, id)
	return scanAttendance(row.Scan)
}

func (r Repo) GetAttendanceByUserDate(ctx context.Context, userID, date string) (domain.Attendance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id=? AND date=?`, userID, date)
	return scanAttendance(row.Scan)
}

type AttendanceFilters struct {
	UserID string
	From   string
	To     string
	Status string
}

func (r Repo) ListAttendance(ctx context.Context, f AttendanceFilters) ([]domain.Attendance, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.From != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, f.To)
	}
	if f.Status != "" {
		clauses = append(clauses, "approval_status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+attendanceColumns+` FROM attendance `+where+` ORDER BY date DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAttendanceApproval(ctx context.Context, tx *sql.Tx, id, status, approvedBy string) error {
	res, err := tx.ExecContext(ctx, `UPDATE attendance SET approval_status=?, approved_by=? WHERE id=?`, status, approvedBy, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
