// Package policy is the single source of truth for authorization. Every
// operation resolves an Actor and a resource snapshot, asks this package for
// a Decision, and aborts before touching data when the decision is a denial.
// The same read predicates drive both single-item authorization and
// collection visibility filtering, so the two paths cannot diverge.
//
// All functions here are pure: no I/O, no clock, no globals. Denial is a
// value, never an error used for control flow; panics are reserved for
// unrecognized action values, which are programmer errors.
package policy

import (
	"fmt"

	"teamline/internal/domain"
)

// DenyReason is the machine-readable cause attached to a denial.
type DenyReason string

const (
	NotOwner             DenyReason = "not_owner"
	InsufficientRole     DenyReason = "insufficient_role"
	ResourceClosed       DenyReason = "resource_closed"
	SelfActionNotAllowed DenyReason = "self_action_not_allowed"
)

// Decision is the outcome of a policy evaluation. Reason is set only when
// Allowed is false.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(r DenyReason) Decision { return Decision{Reason: r} }

// DeniedError carries a denial across the engine/transport boundary.
type DeniedError struct {
	Action string
	Reason DenyReason
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
}

// Err converts the decision into a DeniedError for the named action, or nil
// when allowed.
func (d Decision) Err(action string) error {
	if d.Allowed {
		return nil
	}
	return DeniedError{Action: action, Reason: d.Reason}
}

// Actions are closed per-resource enums. Passing a value outside the declared
// constants panics.

type ProjectAction string

const (
	ProjectRead               ProjectAction = "project.read"
	ProjectCreate             ProjectAction = "project.create"
	ProjectUpdateState        ProjectAction = "project.update_state"
	ProjectManageParticipants ProjectAction = "project.manage_participants"
)

type TaskAction string

const (
	TaskRead         TaskAction = "task.read"
	TaskUpdateStatus TaskAction = "task.update_status"
	TaskDelete       TaskAction = "task.delete"
)

type TicketAction string

const (
	TicketRead   TicketAction = "ticket.read"
	TicketUpdate TicketAction = "ticket.update"
	TicketDelete TicketAction = "ticket.delete"
)

type AttendanceAction string

const (
	AttendanceMark    AttendanceAction = "attendance.mark"
	AttendanceApprove AttendanceAction = "attendance.approve"
	AttendanceRead    AttendanceAction = "attendance.read"
	AttendanceReport  AttendanceAction = "attendance.report"
)

type LeaveAction string

const (
	LeaveApply        LeaveAction = "leave.apply"
	LeaveRead         LeaveAction = "leave.read"
	LeaveDecide       LeaveAction = "leave.decide"
	LeaveUpdatePolicy LeaveAction = "leave.update_policy"
)

type ProfileAction string

const (
	ProfileCreate ProfileAction = "profile.create"
	ProfileRead   ProfileAction = "profile.read"
	ProfileUpdate ProfileAction = "profile.update"
	ProfileDelete ProfileAction = "profile.delete"
)

type NotificationAction string

const (
	NotificationSend   NotificationAction = "notification.send"
	NotificationRead   NotificationAction = "notification.read"
	NotificationDelete NotificationAction = "notification.delete"
)

// Snapshots are read-only projections carrying exactly the fields a decision
// needs. Callers load them before evaluation and thread the same snapshot
// into the mutation that follows an Allow.

type TaskSnapshot struct {
	ID           string
	AssigneeIDs  []string
	ProjectState string
}

type TicketSnapshot struct {
	ID string
	// AssignedTo is empty while the ticket is unassigned.
	AssignedTo      string
	TaskID          string
	TaskAssigneeIDs []string
}

type AttendanceSnapshot struct {
	ID     string
	UserID string
}

type LeaveSnapshot struct {
	ID     string
	UserID string
}

type ProfileSnapshot struct {
	UserID string
	// RoleChange is true when the update touches the role field.
	RoleChange bool
}

type NotificationSnapshot struct {
	ID              string
	Audience        domain.Audience
	RecipientEmails []string
}

func isElevated(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleManager
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
