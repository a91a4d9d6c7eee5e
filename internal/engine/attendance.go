package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/policy"
	"teamline/internal/repo"
)

func attendanceSnapshot(a domain.Attendance) policy.AttendanceSnapshot {
	return policy.AttendanceSnapshot{ID: a.ID, UserID: a.UserID}
}

// MarkAttendance records one row per user per date. The subject defaults to
// the actor; marking for anyone else is denied by policy.
func (e Engine) MarkAttendance(ctx context.Context, actor domain.Actor, userID, date, workMode string) (domain.Attendance, error) {
	if userID == "" {
		userID = actor.ID
	}
	snap := policy.AttendanceSnapshot{UserID: userID}
	if err := policy.DecideAttendance(actor, snap, policy.AttendanceMark).Err(string(policy.AttendanceMark)); err != nil {
		return domain.Attendance{}, err
	}
	if date == "" {
		date = e.now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.Attendance{}, ValidationError{Msg: fmt.Sprintf("invalid date %q", date)}
	}
	if !e.workModeAllowed(workMode) {
		return domain.Attendance{}, ValidationError{Msg: fmt.Sprintf("unknown work mode %q", workMode)}
	}
	if _, err := e.Repo.GetAttendanceByUserDate(ctx, userID, date); err == nil {
		return domain.Attendance{}, ConflictError{Msg: fmt.Sprintf("attendance already marked for %s", date)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Attendance{}, err
	}

	a := domain.Attendance{
		ID:             uuid.NewString(),
		UserID:         userID,
		Date:           date,
		WorkMode:       workMode,
		ApprovalStatus: "pending",
		CreatedAt:      e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attendance{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAttendance(ctx, tx, a); err != nil {
		return domain.Attendance{}, fmt.Errorf("insert attendance: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "attendance.marked", "attendance", a.ID, actor.ID,
		events.EventPayload{"date": date, "work_mode": workMode}); err != nil {
		return domain.Attendance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Attendance{}, err
	}
	return a, nil
}

func (e Engine) workModeAllowed(mode string) bool {
	if e.Config == nil {
		return mode == "office" || mode == "wfh"
	}
	for _, m := range e.Config.Attendance.WorkModes {
		if m == mode {
			return true
		}
	}
	return false
}

// DecideAttendance approves or rejects a pending record. The decision is
// made against the snapshot loaded here, and the approver is stamped on the
// row in the same transaction.
func (e Engine) DecideAttendance(ctx context.Context, actor domain.Actor, id string, approve bool) (domain.Attendance, error) {
	a, err := e.Repo.GetAttendance(ctx, id)
	if err != nil {
		return domain.Attendance{}, err
	}
	if err := policy.DecideAttendance(actor, attendanceSnapshot(a), policy.AttendanceApprove).Err(string(policy.AttendanceApprove)); err != nil {
		return domain.Attendance{}, err
	}
	if a.ApprovalStatus != "pending" {
		return domain.Attendance{}, ConflictError{Msg: fmt.Sprintf("attendance already %s", a.ApprovalStatus)}
	}
	status := "approved"
	if !approve {
		status = "rejected"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attendance{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAttendanceApproval(ctx, tx, a.ID, status, actor.ID); err != nil {
		return domain.Attendance{}, err
	}
	if err := e.Events.Append(ctx, tx, "attendance.decided", "attendance", a.ID, actor.ID,
		events.EventPayload{"status": status, "user_id": a.UserID}); err != nil {
		return domain.Attendance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Attendance{}, err
	}
	a.ApprovalStatus = status
	a.ApprovedBy = &actor.ID
	if u, err := e.Repo.GetUser(ctx, a.UserID); err == nil {
		e.publish([]string{u.Email}, "Attendance "+status,
			fmt.Sprintf("Your attendance for %s was %s.", a.Date, status))
	}
	return a, nil
}

// AttendanceReport lists attendance through the report-mode predicate:
// admins and managers see the whole org, a member only their own rows.
func (e Engine) AttendanceReport(ctx context.Context, actor domain.Actor, f repo.AttendanceFilters) ([]domain.Attendance, error) {
	records, err := e.Repo.ListAttendance(ctx, f)
	if err != nil {
		return nil, err
	}
	return policy.VisibleAttendance(actor, policy.AttendanceReport, records, attendanceSnapshot), nil
}

// ListAttendance is the plain read mode, own-only below admin.
func (e Engine) ListAttendance(ctx context.Context, actor domain.Actor, f repo.AttendanceFilters) ([]domain.Attendance, error) {
	records, err := e.Repo.ListAttendance(ctx, f)
	if err != nil {
		return nil, err
	}
	return policy.VisibleAttendance(actor, policy.AttendanceRead, records, attendanceSnapshot), nil
}
