package policy

import (
	"fmt"

	"teamline/internal/domain"
)

// Visibility filters. Each one applies the matching single-item read
// predicate to every candidate, so a resource survives listing exactly when
// its direct read would be allowed.

func VisibleTasks[T any](actor domain.Actor, items []T, snap func(T) TaskSnapshot) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if DecideTask(actor, snap(it), TaskRead).Allowed {
			out = append(out, it)
		}
	}
	return out
}

func VisibleTickets[T any](actor domain.Actor, items []T, snap func(T) TicketSnapshot) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if DecideTicket(actor, snap(it), TicketRead).Allowed {
			out = append(out, it)
		}
	}
	return out
}

// VisibleAttendance filters with either AttendanceRead or AttendanceReport;
// any other action panics. Report widens manager visibility to the whole
// org, plain read does not.
func VisibleAttendance[T any](actor domain.Actor, action AttendanceAction, items []T, snap func(T) AttendanceSnapshot) []T {
	if action != AttendanceRead && action != AttendanceReport {
		panic(fmt.Sprintf("policy: %q is not an attendance read action", action))
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if DecideAttendance(actor, snap(it), action).Allowed {
			out = append(out, it)
		}
	}
	return out
}

func VisibleLeaves[T any](actor domain.Actor, items []T, snap func(T) LeaveSnapshot) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if DecideLeave(actor, snap(it), LeaveRead).Allowed {
			out = append(out, it)
		}
	}
	return out
}

func VisibleNotifications[T any](actor domain.Actor, items []T, snap func(T) NotificationSnapshot) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if DecideNotification(actor, snap(it), NotificationRead).Allowed {
			out = append(out, it)
		}
	}
	return out
}

// ResolveRecipients narrows the candidate recipient set of an outgoing
// notification. A public notification reaches admins and managers only;
// member candidates are dropped silently, not rejected. A private
// notification may address any role.
func ResolveRecipients(audience domain.Audience, candidates []domain.Actor) []domain.Actor {
	switch audience {
	case domain.AudiencePrivate:
		out := make([]domain.Actor, 0, len(candidates))
		out = append(out, candidates...)
		return out
	case domain.AudiencePublic:
		out := make([]domain.Actor, 0, len(candidates))
		for _, c := range candidates {
			if isElevated(c.Role) {
				out = append(out, c)
			}
		}
		return out
	}
	panic(fmt.Sprintf("policy: unknown audience %q", audience))
}
