package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/policy"
	"teamline/internal/repo"
)

var leaveTypes = map[string]bool{"paid": true, "sick": true, "casual": true}

func leaveSnapshot(l domain.Leave) policy.LeaveSnapshot {
	return policy.LeaveSnapshot{ID: l.ID, UserID: l.UserID}
}

type LeaveApplyOptions struct {
	UserID    string
	LeaveType string
	StartDate string
	EndDate   string
	Reason    string
}

// ApplyLeave files a leave request for the actor. The requested span plus
// already approved days must fit within the configured annual allowance for
// the leave type.
func (e Engine) ApplyLeave(ctx context.Context, actor domain.Actor, opts LeaveApplyOptions) (domain.Leave, error) {
	if opts.UserID == "" {
		opts.UserID = actor.ID
	}
	snap := policy.LeaveSnapshot{UserID: opts.UserID}
	if err := policy.DecideLeave(actor, snap, policy.LeaveApply).Err(string(policy.LeaveApply)); err != nil {
		return domain.Leave{}, err
	}
	if !leaveTypes[opts.LeaveType] {
		return domain.Leave{}, ValidationError{Msg: fmt.Sprintf("unknown leave type %q", opts.LeaveType)}
	}
	days, err := leaveSpanDays(opts.StartDate, opts.EndDate)
	if err != nil {
		return domain.Leave{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Leave{}, err
	}
	defer tx.Rollback()

	if allowance, ok := e.leaveAllowance(opts.LeaveType); ok {
		used, err := e.Repo.ApprovedLeaveDays(ctx, tx, opts.UserID, opts.LeaveType)
		if err != nil {
			return domain.Leave{}, err
		}
		if used+days > allowance {
			return domain.Leave{}, ValidationError{
				Msg: fmt.Sprintf("%s leave allowance exceeded: %d approved + %d requested > %d", opts.LeaveType, used, days, allowance),
			}
		}
	}

	l := domain.Leave{
		ID:        uuid.NewString(),
		UserID:    opts.UserID,
		LeaveType: opts.LeaveType,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Reason:    opts.Reason,
		Status:    "pending",
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertLeave(ctx, tx, l); err != nil {
		return domain.Leave{}, fmt.Errorf("insert leave: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "leave.applied", "leave", l.ID, actor.ID,
		events.EventPayload{"leave_type": l.LeaveType, "start_date": l.StartDate, "end_date": l.EndDate, "days": days}); err != nil {
		return domain.Leave{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Leave{}, err
	}
	e.publish(e.elevatedEmails(ctx), "Leave request from "+actor.Email,
		fmt.Sprintf("%s requested %d day(s) of %s leave (%s to %s).", actor.Email, days, l.LeaveType, l.StartDate, l.EndDate))
	return l, nil
}

func leaveSpanDays(start, end string) (int, error) {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0, ValidationError{Msg: fmt.Sprintf("invalid start date %q", start)}
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return 0, ValidationError{Msg: fmt.Sprintf("invalid end date %q", end)}
	}
	if to.Before(from) {
		return 0, ValidationError{Msg: "end date before start date"}
	}
	return int(to.Sub(from).Hours()/24) + 1, nil
}

func (e Engine) leaveAllowance(leaveType string) (int, bool) {
	if e.Config == nil {
		return 0, false
	}
	days, ok := e.Config.Leave.Allowances[leaveType]
	return days, ok
}

// DecideLeave approves or rejects a pending request, stamping decider and
// decision time. Re-deciding a decided request is a conflict.
func (e Engine) DecideLeave(ctx context.Context, actor domain.Actor, id string, approve bool) (domain.Leave, error) {
	l, err := e.Repo.GetLeave(ctx, id)
	if err != nil {
		return domain.Leave{}, err
	}
	if err := policy.DecideLeave(actor, leaveSnapshot(l), policy.LeaveDecide).Err(string(policy.LeaveDecide)); err != nil {
		return domain.Leave{}, err
	}
	if l.Status != "pending" {
		return domain.Leave{}, ConflictError{Msg: fmt.Sprintf("leave request already %s", l.Status)}
	}
	status := "approved"
	if !approve {
		status = "rejected"
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Leave{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateLeaveDecision(ctx, tx, l.ID, status, actor.ID, now); err != nil {
		return domain.Leave{}, err
	}
	if err := e.Events.Append(ctx, tx, "leave.decided", "leave", l.ID, actor.ID,
		events.EventPayload{"status": status, "user_id": l.UserID}); err != nil {
		return domain.Leave{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Leave{}, err
	}
	l.Status = status
	l.DecidedBy = &actor.ID
	l.DecidedAt = &now
	if u, err := e.Repo.GetUser(ctx, l.UserID); err == nil {
		e.publish([]string{u.Email}, "Leave "+status,
			fmt.Sprintf("Your %s leave (%s to %s) was %s.", l.LeaveType, l.StartDate, l.EndDate, status))
	}
	return l, nil
}

func (e Engine) ListLeave(ctx context.Context, actor domain.Actor, f repo.LeaveFilters) ([]domain.Leave, error) {
	requests, err := e.Repo.ListLeave(ctx, f)
	if err != nil {
		return nil, err
	}
	return policy.VisibleLeaves(actor, requests, leaveSnapshot), nil
}

// UpdateLeavePolicy replaces the org-wide leave allowances. Admin only. The
// updated config is persisted so it survives restarts.
func (e Engine) UpdateLeavePolicy(ctx context.Context, actor domain.Actor, allowances map[string]int) (*config.Config, error) {
	if err := policy.DecideLeave(actor, policy.LeaveSnapshot{}, policy.LeaveUpdatePolicy).Err(string(policy.LeaveUpdatePolicy)); err != nil {
		return nil, err
	}
	if e.Config == nil {
		return nil, ValidationError{Msg: "org config not loaded"}
	}
	updated := *e.Config
	updated.Leave.Allowances = map[string]int{}
	for k, v := range e.Config.Leave.Allowances {
		updated.Leave.Allowances[k] = v
	}
	for k, v := range allowances {
		updated.Leave.Allowances[k] = v
	}
	if err := updated.Validate(); err != nil {
		return nil, ValidationError{Msg: err.Error()}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOrgConfig(ctx, tx, &updated); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "leave.policy_updated", "org", updated.Org.ID, actor.ID,
		events.EventPayload{"allowances": updated.Leave.Allowances}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	*e.Config = updated
	return e.Config, nil
}
