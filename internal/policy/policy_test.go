package policy

import (
	"testing"

	"teamline/internal/domain"
)

var (
	admin   = domain.Actor{ID: "admin1", Role: domain.RoleAdmin, Email: "admin@corp.test"}
	manager = domain.Actor{ID: "mgr1", Role: domain.RoleManager, Email: "mgr@corp.test"}
	member  = domain.Actor{ID: "u1", Role: domain.RoleMember, Email: "u1@corp.test"}
)

func TestDecideProject(t *testing.T) {
	cases := []struct {
		name   string
		actor  domain.Actor
		action ProjectAction
		want   Decision
	}{
		{"member reads projects", member, ProjectRead, Decision{Allowed: true}},
		{"member cannot create projects", member, ProjectCreate, Decision{Reason: InsufficientRole}},
		{"manager creates projects", manager, ProjectCreate, Decision{Allowed: true}},
		{"manager changes project state", manager, ProjectUpdateState, Decision{Allowed: true}},
		{"member cannot manage participants", member, ProjectManageParticipants, Decision{Reason: InsufficientRole}},
		{"admin manages participants", admin, ProjectManageParticipants, Decision{Allowed: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideProject(tc.actor, tc.action)
			if got != tc.want {
				t.Fatalf("DecideProject(%s, %s) = %+v, want %+v", tc.actor.ID, tc.action, got, tc.want)
			}
		})
	}
}

func TestDecideTask(t *testing.T) {
	assigned := TaskSnapshot{ID: "t1", AssigneeIDs: []string{"u1"}, ProjectState: "ongoing"}
	unassigned := TaskSnapshot{ID: "t2", AssigneeIDs: []string{"u2"}, ProjectState: "ongoing"}
	paused := TaskSnapshot{ID: "t3", AssigneeIDs: []string{"u1"}, ProjectState: "paused"}
	cancelled := TaskSnapshot{ID: "t4", AssigneeIDs: []string{"u1"}, ProjectState: "cancelled"}
	completed := TaskSnapshot{ID: "t5", AssigneeIDs: []string{"u1"}, ProjectState: "completed"}

	cases := []struct {
		name   string
		actor  domain.Actor
		snap   TaskSnapshot
		action TaskAction
		want   Decision
	}{
		{"admin reads any", admin, unassigned, TaskRead, Decision{Allowed: true}},
		{"manager reads any", manager, unassigned, TaskRead, Decision{Allowed: true}},
		{"member reads assigned", member, assigned, TaskRead, Decision{Allowed: true}},
		{"member blocked from unassigned", member, unassigned, TaskRead, Decision{Reason: NotOwner}},
		{"assignee updates status", member, assigned, TaskUpdateStatus, Decision{Allowed: true}},
		{"non-assignee denied status update", member, unassigned, TaskUpdateStatus, Decision{Reason: NotOwner}},
		{"assignee blocked on paused project", member, paused, TaskUpdateStatus, Decision{Reason: ResourceClosed}},
		{"assignee blocked on cancelled project", member, cancelled, TaskUpdateStatus, Decision{Reason: ResourceClosed}},
		{"completed project still editable", member, completed, TaskUpdateStatus, Decision{Allowed: true}},
		{"manager updates on paused project", manager, paused, TaskUpdateStatus, Decision{Allowed: true}},
		{"admin deletes", admin, assigned, TaskDelete, Decision{Allowed: true}},
		{"manager cannot delete tasks", manager, assigned, TaskDelete, Decision{Reason: InsufficientRole}},
		{"member cannot delete tasks", member, assigned, TaskDelete, Decision{Reason: InsufficientRole}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideTask(tc.actor, tc.snap, tc.action)
			if got != tc.want {
				t.Fatalf("DecideTask(%s, %s, %s) = %+v, want %+v", tc.actor.ID, tc.snap.ID, tc.action, got, tc.want)
			}
		})
	}
}

func TestDecideTicket(t *testing.T) {
	// u1 is an assignee of the parent task but the ticket belongs to u2.
	taskLevel := TicketSnapshot{ID: "k1", AssignedTo: "u2", TaskID: "t1", TaskAssigneeIDs: []string{"u1", "u2"}}
	own := TicketSnapshot{ID: "k2", AssignedTo: "u1", TaskID: "t1", TaskAssigneeIDs: []string{"u1"}}
	foreign := TicketSnapshot{ID: "k3", AssignedTo: "u2", TaskID: "t9", TaskAssigneeIDs: []string{"u2"}}
	unassigned := TicketSnapshot{ID: "k4", TaskID: "t1", TaskAssigneeIDs: []string{"u1"}}

	cases := []struct {
		name   string
		actor  domain.Actor
		snap   TicketSnapshot
		action TicketAction
		want   Decision
	}{
		{"member reads via parent task", member, taskLevel, TicketRead, Decision{Allowed: true}},
		{"read access does not imply update", member, taskLevel, TicketUpdate, Decision{Reason: NotOwner}},
		{"member updates own ticket", member, own, TicketUpdate, Decision{Allowed: true}},
		{"member blocked from foreign ticket", member, foreign, TicketRead, Decision{Reason: NotOwner}},
		{"unassigned ticket not updatable by member", member, unassigned, TicketUpdate, Decision{Reason: NotOwner}},
		{"manager updates any ticket", manager, foreign, TicketUpdate, Decision{Allowed: true}},
		{"manager deletes tickets", manager, own, TicketDelete, Decision{Allowed: true}},
		{"admin deletes tickets", admin, own, TicketDelete, Decision{Allowed: true}},
		{"member cannot delete tickets", member, own, TicketDelete, Decision{Reason: InsufficientRole}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideTicket(tc.actor, tc.snap, tc.action)
			if got != tc.want {
				t.Fatalf("DecideTicket(%s, %s, %s) = %+v, want %+v", tc.actor.ID, tc.snap.ID, tc.action, got, tc.want)
			}
		})
	}
}

func TestDecideAttendance(t *testing.T) {
	ownMgr := AttendanceSnapshot{ID: "a1", UserID: "mgr1"}
	ownMember := AttendanceSnapshot{ID: "a2", UserID: "u1"}
	other := AttendanceSnapshot{ID: "a3", UserID: "u2"}

	cases := []struct {
		name   string
		actor  domain.Actor
		snap   AttendanceSnapshot
		action AttendanceAction
		want   Decision
	}{
		{"member marks own", member, ownMember, AttendanceMark, Decision{Allowed: true}},
		{"member cannot mark for others", member, other, AttendanceMark, Decision{Reason: NotOwner}},
		{"manager cannot mark for others", manager, other, AttendanceMark, Decision{Reason: NotOwner}},
		{"manager approves member record", manager, ownMember, AttendanceApprove, Decision{Allowed: true}},
		{"member cannot approve", member, other, AttendanceApprove, Decision{Reason: InsufficientRole}},
		{"manager cannot approve own record", manager, ownMgr, AttendanceApprove, Decision{Reason: SelfActionNotAllowed}},
		{"admin cannot approve own record", admin, AttendanceSnapshot{ID: "a4", UserID: "admin1"}, AttendanceApprove, Decision{Reason: SelfActionNotAllowed}},
		{"admin reads any", admin, other, AttendanceRead, Decision{Allowed: true}},
		{"manager plain read is own-only", manager, other, AttendanceRead, Decision{Reason: NotOwner}},
		{"manager reads own", manager, ownMgr, AttendanceRead, Decision{Allowed: true}},
		{"manager report sees all", manager, other, AttendanceReport, Decision{Allowed: true}},
		{"member report stays own-only", member, other, AttendanceReport, Decision{Reason: NotOwner}},
		{"member report sees own", member, ownMember, AttendanceReport, Decision{Allowed: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideAttendance(tc.actor, tc.snap, tc.action)
			if got != tc.want {
				t.Fatalf("DecideAttendance(%s, %s, %s) = %+v, want %+v", tc.actor.ID, tc.snap.ID, tc.action, got, tc.want)
			}
		})
	}
}

func TestDecideLeave(t *testing.T) {
	ownMember := LeaveSnapshot{ID: "l1", UserID: "u1"}
	ownMgr := LeaveSnapshot{ID: "l2", UserID: "mgr1"}
	other := LeaveSnapshot{ID: "l3", UserID: "u2"}

	cases := []struct {
		name   string
		actor  domain.Actor
		snap   LeaveSnapshot
		action LeaveAction
		want   Decision
	}{
		{"member applies for self", member, ownMember, LeaveApply, Decision{Allowed: true}},
		{"manager applies for self", manager, ownMgr, LeaveApply, Decision{Allowed: true}},
		{"applying for another denied", manager, other, LeaveApply, Decision{Reason: NotOwner}},
		{"manager decides member leave", manager, ownMember, LeaveDecide, Decision{Allowed: true}},
		{"member cannot decide", member, other, LeaveDecide, Decision{Reason: InsufficientRole}},
		{"manager cannot decide own leave", manager, ownMgr, LeaveDecide, Decision{Reason: SelfActionNotAllowed}},
		{"member reads own", member, ownMember, LeaveRead, Decision{Allowed: true}},
		{"member blocked from others", member, other, LeaveRead, Decision{Reason: NotOwner}},
		{"manager reads all", manager, other, LeaveRead, Decision{Allowed: true}},
		{"admin updates leave policy", admin, LeaveSnapshot{}, LeaveUpdatePolicy, Decision{Allowed: true}},
		{"manager cannot update leave policy", manager, LeaveSnapshot{}, LeaveUpdatePolicy, Decision{Reason: InsufficientRole}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideLeave(tc.actor, tc.snap, tc.action)
			if got != tc.want {
				t.Fatalf("DecideLeave(%s, %s, %s) = %+v, want %+v", tc.actor.ID, tc.snap.ID, tc.action, got, tc.want)
			}
		})
	}
}

func TestDecideProfile(t *testing.T) {
	cases := []struct {
		name   string
		actor  domain.Actor
		snap   ProfileSnapshot
		action ProfileAction
		want   Decision
	}{
		{"anyone reads any profile", member, ProfileSnapshot{UserID: "u2"}, ProfileRead, Decision{Allowed: true}},
		{"self update", member, ProfileSnapshot{UserID: "u1"}, ProfileUpdate, Decision{Allowed: true}},
		{"member cannot update others", member, ProfileSnapshot{UserID: "u2"}, ProfileUpdate, Decision{Reason: NotOwner}},
		{"manager updates others", manager, ProfileSnapshot{UserID: "u1"}, ProfileUpdate, Decision{Allowed: true}},
		{"manager cannot change roles", manager, ProfileSnapshot{UserID: "u1", RoleChange: true}, ProfileUpdate, Decision{Reason: InsufficientRole}},
		{"admin changes another role", admin, ProfileSnapshot{UserID: "u1", RoleChange: true}, ProfileUpdate, Decision{Allowed: true}},
		{"admin cannot change own role", admin, ProfileSnapshot{UserID: "admin1", RoleChange: true}, ProfileUpdate, Decision{Reason: SelfActionNotAllowed}},
		{"member cannot change own role", member, ProfileSnapshot{UserID: "u1", RoleChange: true}, ProfileUpdate, Decision{Reason: InsufficientRole}},
		{"admin creates users", admin, ProfileSnapshot{}, ProfileCreate, Decision{Allowed: true}},
		{"manager cannot create users", manager, ProfileSnapshot{}, ProfileCreate, Decision{Reason: InsufficientRole}},
		{"admin deletes profiles", admin, ProfileSnapshot{UserID: "u1"}, ProfileDelete, Decision{Allowed: true}},
		{"manager cannot delete profiles", manager, ProfileSnapshot{UserID: "u1"}, ProfileDelete, Decision{Reason: InsufficientRole}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideProfile(tc.actor, tc.snap, tc.action)
			if got != tc.want {
				t.Fatalf("DecideProfile(%s, %+v, %s) = %+v, want %+v", tc.actor.ID, tc.snap, tc.action, got, tc.want)
			}
		})
	}
}

func TestDecideNotification(t *testing.T) {
	public := NotificationSnapshot{ID: "n1", Audience: domain.AudiencePublic}
	toMember := NotificationSnapshot{ID: "n2", Audience: domain.AudiencePrivate, RecipientEmails: []string{"u1@corp.test"}}
	toOther := NotificationSnapshot{ID: "n3", Audience: domain.AudiencePrivate, RecipientEmails: []string{"u2@corp.test"}}

	cases := []struct {
		name   string
		actor  domain.Actor
		snap   NotificationSnapshot
		action NotificationAction
		want   Decision
	}{
		{"manager sends", manager, NotificationSnapshot{}, NotificationSend, Decision{Allowed: true}},
		{"member cannot send", member, NotificationSnapshot{}, NotificationSend, Decision{Reason: InsufficientRole}},
		{"admin reads private to others", admin, toOther, NotificationRead, Decision{Allowed: true}},
		{"member reads public", member, public, NotificationRead, Decision{Allowed: true}},
		{"member reads private addressed to them", member, toMember, NotificationRead, Decision{Allowed: true}},
		{"member blocked from others' private", member, toOther, NotificationRead, Decision{Reason: NotOwner}},
		{"manager blocked from others' private", manager, toOther, NotificationRead, Decision{Reason: NotOwner}},
		{"manager deletes", manager, public, NotificationDelete, Decision{Allowed: true}},
		{"member cannot delete", member, public, NotificationDelete, Decision{Reason: InsufficientRole}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideNotification(tc.actor, tc.snap, tc.action)
			if got != tc.want {
				t.Fatalf("DecideNotification(%s, %s, %s) = %+v, want %+v", tc.actor.ID, tc.snap.ID, tc.action, got, tc.want)
			}
		})
	}
}

// Listing must keep exactly the items whose direct read is allowed.
func TestFilterMatchesSingleItemRead(t *testing.T) {
	tasks := []TaskSnapshot{
		{ID: "t1", AssigneeIDs: []string{"u1"}, ProjectState: "ongoing"},
		{ID: "t2", AssigneeIDs: []string{"u2"}, ProjectState: "ongoing"},
		{ID: "t3", AssigneeIDs: nil, ProjectState: "paused"},
		{ID: "t4", AssigneeIDs: []string{"u1", "u2"}, ProjectState: "cancelled"},
	}
	for _, actor := range []domain.Actor{admin, manager, member} {
		visible := VisibleTasks(actor, tasks, func(s TaskSnapshot) TaskSnapshot { return s })
		kept := make(map[string]bool, len(visible))
		for _, v := range visible {
			kept[v.ID] = true
		}
		for _, snap := range tasks {
			want := DecideTask(actor, snap, TaskRead).Allowed
			if kept[snap.ID] != want {
				t.Fatalf("actor %s: task %s filtered=%v, decide=%v", actor.ID, snap.ID, kept[snap.ID], want)
			}
		}
	}

	notifs := []NotificationSnapshot{
		{ID: "n1", Audience: domain.AudiencePublic},
		{ID: "n2", Audience: domain.AudiencePrivate, RecipientEmails: []string{"u1@corp.test"}},
		{ID: "n3", Audience: domain.AudiencePrivate, RecipientEmails: []string{"mgr@corp.test"}},
	}
	for _, actor := range []domain.Actor{admin, manager, member} {
		visible := VisibleNotifications(actor, notifs, func(s NotificationSnapshot) NotificationSnapshot { return s })
		kept := make(map[string]bool, len(visible))
		for _, v := range visible {
			kept[v.ID] = true
		}
		for _, snap := range notifs {
			want := DecideNotification(actor, snap, NotificationRead).Allowed
			if kept[snap.ID] != want {
				t.Fatalf("actor %s: notification %s filtered=%v, decide=%v", actor.ID, snap.ID, kept[snap.ID], want)
			}
		}
	}
}

func TestVisibleAttendanceModes(t *testing.T) {
	records := []AttendanceSnapshot{
		{ID: "a1", UserID: "mgr1"},
		{ID: "a2", UserID: "u1"},
		{ID: "a3", UserID: "u2"},
	}
	ident := func(s AttendanceSnapshot) AttendanceSnapshot { return s }

	if got := VisibleAttendance(manager, AttendanceRead, records, ident); len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("manager plain read = %+v, want own record only", got)
	}
	if got := VisibleAttendance(manager, AttendanceReport, records, ident); len(got) != 3 {
		t.Fatalf("manager report = %+v, want all records", got)
	}
	if got := VisibleAttendance(member, AttendanceReport, records, ident); len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("member report = %+v, want own record only", got)
	}
	if got := VisibleAttendance(admin, AttendanceRead, records, ident); len(got) != 3 {
		t.Fatalf("admin read = %+v, want all records", got)
	}
}

func TestResolveRecipients(t *testing.T) {
	candidates := []domain.Actor{admin, manager, member}

	public := ResolveRecipients(domain.AudiencePublic, candidates)
	if len(public) != 2 {
		t.Fatalf("public recipients = %d, want 2", len(public))
	}
	for _, r := range public {
		if r.Role == domain.RoleMember {
			t.Fatalf("member %s leaked into public recipient set", r.ID)
		}
	}

	private := ResolveRecipients(domain.AudiencePrivate, candidates)
	if len(private) != 3 {
		t.Fatalf("private recipients = %d, want 3", len(private))
	}
}

func TestDecideIsPure(t *testing.T) {
	snap := TaskSnapshot{ID: "t1", AssigneeIDs: []string{"u1"}, ProjectState: "ongoing"}
	first := DecideTask(member, snap, TaskUpdateStatus)
	second := DecideTask(member, snap, TaskUpdateStatus)
	if first != second {
		t.Fatalf("same inputs produced %+v then %+v", first, second)
	}
}

func TestUnknownActionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unrecognized action")
		}
	}()
	DecideTask(admin, TaskSnapshot{}, TaskAction("task.frobnicate"))
}
