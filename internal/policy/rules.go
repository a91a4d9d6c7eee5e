package policy

import (
	"fmt"

	"teamline/internal/domain"
)

// projectClosed reports whether a project state blocks member-side task
// mutations. Completed projects stay readable and their tasks editable;
// paused and cancelled ones do not.
func projectClosed(state string) bool {
	return state == "paused" || state == "cancelled"
}

// DecideProject evaluates project actions. Project structure is visible to
// everyone; changing it is admin/manager work.
func DecideProject(actor domain.Actor, action ProjectAction) Decision {
	switch action {
	case ProjectRead:
		return allow()
	case ProjectCreate, ProjectUpdateState, ProjectManageParticipants:
		if isElevated(actor.Role) {
			return allow()
		}
		return deny(InsufficientRole)
	}
	panic(fmt.Sprintf("policy: unknown project action %q", action))
}

// DecideTask evaluates task actions.
//
// Read: admin and manager see every task, a member only tasks they are
// assigned to. UpdateStatus follows the same ownership rule and additionally
// refuses member updates on paused or cancelled projects. Delete is admin
// only; managers delete tickets, not tasks.
func DecideTask(actor domain.Actor, snap TaskSnapshot, action TaskAction) Decision {
	switch action {
	case TaskRead:
		if isElevated(actor.Role) {
			return allow()
		}
		if contains(snap.AssigneeIDs, actor.ID) {
			return allow()
		}
		return deny(NotOwner)
	case TaskUpdateStatus:
		if isElevated(actor.Role) {
			return allow()
		}
		if !contains(snap.AssigneeIDs, actor.ID) {
			return deny(NotOwner)
		}
		if projectClosed(snap.ProjectState) {
			return deny(ResourceClosed)
		}
		return allow()
	case TaskDelete:
		if actor.Role == domain.RoleAdmin {
			return allow()
		}
		return deny(InsufficientRole)
	}
	panic(fmt.Sprintf("policy: unknown task action %q", action))
}

// DecideTicket evaluates ticket actions.
//
// A member reads tickets through assignment on the parent task, but may only
// update a ticket assigned to them personally: task-level access never
// implies ticket-level write access.
func DecideTicket(actor domain.Actor, snap TicketSnapshot, action TicketAction) Decision {
	switch action {
	case TicketRead:
		if isElevated(actor.Role) {
			return allow()
		}
		if contains(snap.TaskAssigneeIDs, actor.ID) {
			return allow()
		}
		return deny(NotOwner)
	case TicketUpdate:
		if isElevated(actor.Role) {
			return allow()
		}
		if snap.AssignedTo != "" && snap.AssignedTo == actor.ID {
			return allow()
		}
		return deny(NotOwner)
	case TicketDelete:
		if isElevated(actor.Role) {
			return allow()
		}
		return deny(InsufficientRole)
	}
	panic(fmt.Sprintf("policy: unknown ticket action %q", action))
}

// DecideAttendance evaluates attendance actions.
//
// Marking is self-only for every role. Approval requires admin or manager
// and an approver distinct from the subject. Read is own-only below admin;
// Report widens manager to the whole org while a member still sees only
// their own rows.
func DecideAttendance(actor domain.Actor, snap AttendanceSnapshot, action AttendanceAction) Decision {
	switch action {
	case AttendanceMark:
		if snap.UserID != actor.ID {
			return deny(NotOwner)
		}
		return allow()
	case AttendanceApprove:
		if !isElevated(actor.Role) {
			return deny(InsufficientRole)
		}
		if snap.UserID == actor.ID {
			return deny(SelfActionNotAllowed)
		}
		return allow()
	case AttendanceRead:
		if actor.Role == domain.RoleAdmin {
			return allow()
		}
		if snap.UserID == actor.ID {
			return allow()
		}
		return deny(NotOwner)
	case AttendanceReport:
		if isElevated(actor.Role) {
			return allow()
		}
		if snap.UserID == actor.ID {
			return allow()
		}
		return deny(NotOwner)
	}
	panic(fmt.Sprintf("policy: unknown attendance action %q", action))
}

// DecideLeave evaluates leave actions. Applying is self-only; deciding
// requires admin or manager and a decider distinct from the subject; the
// org-wide leave policy is admin territory.
func DecideLeave(actor domain.Actor, snap LeaveSnapshot, action LeaveAction) Decision {
	switch action {
	case LeaveApply:
		if snap.UserID != actor.ID {
			return deny(NotOwner)
		}
		return allow()
	case LeaveRead:
		if isElevated(actor.Role) {
			return allow()
		}
		if snap.UserID == actor.ID {
			return allow()
		}
		return deny(NotOwner)
	case LeaveDecide:
		if !isElevated(actor.Role) {
			return deny(InsufficientRole)
		}
		if snap.UserID == actor.ID {
			return deny(SelfActionNotAllowed)
		}
		return allow()
	case LeaveUpdatePolicy:
		if actor.Role == domain.RoleAdmin {
			return allow()
		}
		return deny(InsufficientRole)
	}
	panic(fmt.Sprintf("policy: unknown leave action %q", action))
}

// DecideProfile evaluates profile actions. Anyone authenticated reads any
// profile. Updates are self-service or admin/manager, except the role field:
// only an admin changes roles, and never their own.
func DecideProfile(actor domain.Actor, snap ProfileSnapshot, action ProfileAction) Decision {
	switch action {
	case ProfileCreate:
		if actor.Role == domain.RoleAdmin {
			return allow()
		}
		return deny(InsufficientRole)
	case ProfileRead:
		return allow()
	case ProfileUpdate:
		if snap.RoleChange {
			if actor.Role != domain.RoleAdmin {
				return deny(InsufficientRole)
			}
			if snap.UserID == actor.ID {
				return deny(SelfActionNotAllowed)
			}
			return allow()
		}
		if snap.UserID == actor.ID {
			return allow()
		}
		if isElevated(actor.Role) {
			return allow()
		}
		return deny(NotOwner)
	case ProfileDelete:
		if actor.Role == domain.RoleAdmin {
			return allow()
		}
		return deny(InsufficientRole)
	}
	panic(fmt.Sprintf("policy: unknown profile action %q", action))
}

// DecideNotification evaluates notification actions. Sending and deleting
// are admin/manager; reading gives an admin everything and everyone else the
// public feed plus private notifications addressed to their email.
func DecideNotification(actor domain.Actor, snap NotificationSnapshot, action NotificationAction) Decision {
	switch action {
	case NotificationSend:
		if isElevated(actor.Role) {
			return allow()
		}
		return deny(InsufficientRole)
	case NotificationRead:
		if actor.Role == domain.RoleAdmin {
			return allow()
		}
		if snap.Audience == domain.AudiencePublic {
			return allow()
		}
		if contains(snap.RecipientEmails, actor.Email) {
			return allow()
		}
		return deny(NotOwner)
	case NotificationDelete:
		if isElevated(actor.Role) {
			return allow()
		}
		return deny(InsufficientRole)
	}
	panic(fmt.Sprintf("policy: unknown notification action %q", action))
}
