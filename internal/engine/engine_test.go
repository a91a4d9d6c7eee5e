package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"teamline/internal/config"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/migrate"
	"teamline/internal/policy"
	"teamline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Admin   domain.Actor
	Manager domain.Actor
	Member  domain.Actor
	Member2 domain.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	admin, err := eng.Bootstrap(ctx, "Ada Admin", "ada@corp.test")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	mgr, err := eng.CreateUser(ctx, admin.Actor(), "Mia Manager", "mia@corp.test", domain.RoleManager)
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	mem, err := eng.CreateUser(ctx, admin.Actor(), "Milo Member", "milo@corp.test", domain.RoleMember)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	mem2, err := eng.CreateUser(ctx, admin.Actor(), "Nora Member", "nora@corp.test", domain.RoleMember)
	if err != nil {
		t.Fatalf("create member 2: %v", err)
	}
	return testEnv{
		Engine:  eng,
		Ctx:     ctx,
		Admin:   admin.Actor(),
		Manager: mgr.Actor(),
		Member:  mem.Actor(),
		Member2: mem2.Actor(),
	}
}

func (env testEnv) projectWithTask(t *testing.T, assignees ...domain.Actor) (domain.Project, domain.Task) {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, env.Manager, "Apollo", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	var ids []string
	for _, a := range assignees {
		if _, err := env.Engine.AddParticipant(env.Ctx, env.Manager, p.ID, a.ID, domain.ProjectMember); err != nil {
			t.Fatalf("add participant: %v", err)
		}
		ids = append(ids, a.ID)
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Manager, engine.TaskCreateOptions{
		ProjectID:   p.ID,
		Title:       "Ship it",
		AssigneeIDs: ids,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return p, task
}

func wantDenied(t *testing.T, err error, reason policy.DenyReason) {
	t.Helper()
	var denied policy.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("got %v, want DeniedError(%s)", err, reason)
	}
	if denied.Reason != reason {
		t.Fatalf("deny reason = %s, want %s", denied.Reason, reason)
	}
}

func TestTaskStatusAuthorization(t *testing.T) {
	env := newTestEnv(t)
	_, task := env.projectWithTask(t, env.Member)

	got, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "ongoing")
	if err != nil {
		t.Fatalf("assignee update: %v", err)
	}
	if got.Status != "ongoing" {
		t.Fatalf("status = %s, want ongoing", got.Status)
	}

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, env.Member2, task.ID, "completed")
	wantDenied(t, err, policy.NotOwner)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, env.Member, "no-such-task", "ongoing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task: got %v, want ErrNotFound", err)
	}
}

func TestTaskStatusOnPausedProject(t *testing.T) {
	env := newTestEnv(t)
	p, task := env.projectWithTask(t, env.Member)
	if _, err := env.Engine.UpdateProjectState(env.Ctx, env.Manager, p.ID, "paused"); err != nil {
		t.Fatalf("pause project: %v", err)
	}

	_, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "ongoing")
	wantDenied(t, err, policy.ResourceClosed)

	// Elevated roles are not blocked by project state.
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Manager, task.ID, "ongoing"); err != nil {
		t.Fatalf("manager update on paused project: %v", err)
	}
}

func TestTaskDeleteIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	_, task := env.projectWithTask(t, env.Member)

	err := env.Engine.DeleteTask(env.Ctx, env.Manager, task.ID)
	wantDenied(t, err, policy.InsufficientRole)

	if err := env.Engine.DeleteTask(env.Ctx, env.Admin, task.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.Admin, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task still present after delete: %v", err)
	}
}

func TestTaskVisibility(t *testing.T) {
	env := newTestEnv(t)
	_, assigned := env.projectWithTask(t, env.Member)
	env.projectWithTask(t, env.Member2)

	mine, err := env.Engine.ListTasks(env.Ctx, env.Member, repo.TaskFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != assigned.ID {
		t.Fatalf("member sees %d tasks, want only their own", len(mine))
	}

	all, err := env.Engine.ListTasks(env.Ctx, env.Manager, repo.TaskFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("manager sees %d tasks, want 2", len(all))
	}

	// Single-item read agrees with the filter.
	if _, err := env.Engine.GetTask(env.Ctx, env.Member, assigned.ID); err != nil {
		t.Fatalf("member read of assigned task: %v", err)
	}
	other := all[0]
	if other.ID == assigned.ID {
		other = all[1]
	}
	_, err = env.Engine.GetTask(env.Ctx, env.Member, other.ID)
	wantDenied(t, err, policy.NotOwner)
}

func TestTicketUpdateNeedsTicketAssignment(t *testing.T) {
	env := newTestEnv(t)
	_, task := env.projectWithTask(t, env.Member, env.Member2)
	ticket, err := env.Engine.AddTicket(env.Ctx, env.Manager, engine.TicketCreateOptions{
		TaskID:     task.ID,
		IssueTitle: "Crash on save",
		AssignedTo: env.Member2.ID,
		Priority:   "high",
	})
	if err != nil {
		t.Fatalf("add ticket: %v", err)
	}

	// Member reads via the parent task but cannot update a ticket that is
	// not assigned to them.
	if _, err := env.Engine.GetTicket(env.Ctx, env.Member, ticket.ID); err != nil {
		t.Fatalf("read via parent task: %v", err)
	}
	status := "pending"
	_, err = env.Engine.UpdateTicket(env.Ctx, env.Member, ticket.ID, engine.TicketUpdateOptions{Status: &status})
	wantDenied(t, err, policy.NotOwner)

	if _, err := env.Engine.UpdateTicket(env.Ctx, env.Member2, ticket.ID, engine.TicketUpdateOptions{Status: &status}); err != nil {
		t.Fatalf("assignee update: %v", err)
	}

	err = env.Engine.DeleteTicket(env.Ctx, env.Member2, ticket.ID)
	wantDenied(t, err, policy.InsufficientRole)
	if err := env.Engine.DeleteTicket(env.Ctx, env.Manager, ticket.ID); err != nil {
		t.Fatalf("manager delete ticket: %v", err)
	}
}

func TestAttendanceFlow(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.Engine.MarkAttendance(env.Ctx, env.Member, "", "2025-06-01", "wfh")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if a.ApprovalStatus != "pending" {
		t.Fatalf("approval status = %s, want pending", a.ApprovalStatus)
	}

	_, err = env.Engine.MarkAttendance(env.Ctx, env.Member, "", "2025-06-01", "office")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate mark: got %v, want ConflictError", err)
	}

	_, err = env.Engine.MarkAttendance(env.Ctx, env.Manager, env.Member.ID, "2025-06-02", "office")
	wantDenied(t, err, policy.NotOwner)

	_, err = env.Engine.DecideAttendance(env.Ctx, env.Member2, a.ID, true)
	wantDenied(t, err, policy.InsufficientRole)

	decided, err := env.Engine.DecideAttendance(env.Ctx, env.Manager, a.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if decided.ApprovalStatus != "approved" || decided.ApprovedBy == nil || *decided.ApprovedBy != env.Manager.ID {
		t.Fatalf("approver not stamped: %+v", decided)
	}

	_, err = env.Engine.DecideAttendance(env.Ctx, env.Admin, a.ID, false)
	if !errors.As(err, &conflict) {
		t.Fatalf("re-decide: got %v, want ConflictError", err)
	}
}

func TestAttendanceSelfApprovalBlocked(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.MarkAttendance(env.Ctx, env.Manager, "", "2025-06-01", "office")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	_, err = env.Engine.DecideAttendance(env.Ctx, env.Manager, a.ID, true)
	wantDenied(t, err, policy.SelfActionNotAllowed)
}

func TestAttendanceReportAsymmetry(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.MarkAttendance(env.Ctx, env.Member, "", "2025-06-01", "wfh"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkAttendance(env.Ctx, env.Member2, "", "2025-06-01", "office"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkAttendance(env.Ctx, env.Manager, "", "2025-06-01", "office"); err != nil {
		t.Fatal(err)
	}

	report, err := env.Engine.AttendanceReport(env.Ctx, env.Manager, repo.AttendanceFilters{})
	if err != nil {
		t.Fatalf("manager report: %v", err)
	}
	if len(report) != 3 {
		t.Fatalf("manager report sees %d rows, want 3", len(report))
	}

	// Report mode does not widen member visibility.
	report, err = env.Engine.AttendanceReport(env.Ctx, env.Member, repo.AttendanceFilters{})
	if err != nil {
		t.Fatalf("member report: %v", err)
	}
	if len(report) != 1 || report[0].UserID != env.Member.ID {
		t.Fatalf("member report = %+v, want own row only", report)
	}

	// Plain read keeps even the manager own-only.
	plain, err := env.Engine.ListAttendance(env.Ctx, env.Manager, repo.AttendanceFilters{})
	if err != nil {
		t.Fatalf("manager list: %v", err)
	}
	if len(plain) != 1 || plain[0].UserID != env.Manager.ID {
		t.Fatalf("manager plain read = %+v, want own row only", plain)
	}
}

func TestLeaveFlow(t *testing.T) {
	env := newTestEnv(t)

	l, err := env.Engine.ApplyLeave(env.Ctx, env.Member, engine.LeaveApplyOptions{
		LeaveType: "casual",
		StartDate: "2025-06-10",
		EndDate:   "2025-06-11",
		Reason:    "family",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	_, err = env.Engine.ApplyLeave(env.Ctx, env.Manager, engine.LeaveApplyOptions{
		UserID:    env.Member.ID,
		LeaveType: "casual",
		StartDate: "2025-06-10",
		EndDate:   "2025-06-11",
	})
	wantDenied(t, err, policy.NotOwner)

	_, err = env.Engine.DecideLeave(env.Ctx, env.Member2, l.ID, true)
	wantDenied(t, err, policy.InsufficientRole)

	decided, err := env.Engine.DecideLeave(env.Ctx, env.Manager, l.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if decided.DecidedBy == nil || *decided.DecidedBy != env.Manager.ID || decided.DecidedAt == nil {
		t.Fatalf("decision not stamped: %+v", decided)
	}

	var conflict engine.ConflictError
	if _, err := env.Engine.DecideLeave(env.Ctx, env.Admin, l.ID, false); !errors.As(err, &conflict) {
		t.Fatalf("re-decide: got %v, want ConflictError", err)
	}
}

func TestLeaveSelfDecisionBlocked(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.Engine.ApplyLeave(env.Ctx, env.Manager, engine.LeaveApplyOptions{
		LeaveType: "paid",
		StartDate: "2025-07-01",
		EndDate:   "2025-07-03",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, err = env.Engine.DecideLeave(env.Ctx, env.Manager, l.ID, true)
	wantDenied(t, err, policy.SelfActionNotAllowed)
}

func TestLeaveAllowanceAccounting(t *testing.T) {
	env := newTestEnv(t)

	// Casual allowance in the default config is 6 days. Approve 5, then a
	// 2-day request must be rejected at apply time.
	l, err := env.Engine.ApplyLeave(env.Ctx, env.Member, engine.LeaveApplyOptions{
		LeaveType: "casual",
		StartDate: "2025-06-02",
		EndDate:   "2025-06-06",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := env.Engine.DecideLeave(env.Ctx, env.Manager, l.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = env.Engine.ApplyLeave(env.Ctx, env.Member, engine.LeaveApplyOptions{
		LeaveType: "casual",
		StartDate: "2025-06-23",
		EndDate:   "2025-06-24",
	})
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("over-allowance apply: got %v, want ValidationError", err)
	}

	// One more day still fits.
	if _, err := env.Engine.ApplyLeave(env.Ctx, env.Member, engine.LeaveApplyOptions{
		LeaveType: "casual",
		StartDate: "2025-06-23",
		EndDate:   "2025-06-23",
	}); err != nil {
		t.Fatalf("within-allowance apply: %v", err)
	}
}

func TestLeavePolicyUpdate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.UpdateLeavePolicy(env.Ctx, env.Manager, map[string]int{"casual": 10})
	wantDenied(t, err, policy.InsufficientRole)

	cfg, err := env.Engine.UpdateLeavePolicy(env.Ctx, env.Admin, map[string]int{"casual": 10})
	if err != nil {
		t.Fatalf("update policy: %v", err)
	}
	if cfg.Leave.Allowances["casual"] != 10 {
		t.Fatalf("casual allowance = %d, want 10", cfg.Leave.Allowances["casual"])
	}

	stored, err := env.Engine.Repo.GetOrgConfig(env.Ctx)
	if err != nil {
		t.Fatalf("stored config: %v", err)
	}
	if stored.Leave.Allowances["casual"] != 10 {
		t.Fatalf("stored casual allowance = %d, want 10", stored.Leave.Allowances["casual"])
	}
}

func TestProfileRoleChangeRules(t *testing.T) {
	env := newTestEnv(t)
	role := domain.RoleManager

	_, err := env.Engine.UpdateProfile(env.Ctx, env.Manager, env.Member.ID, engine.ProfileUpdateOptions{Role: &role})
	wantDenied(t, err, policy.InsufficientRole)

	adminRole := domain.RoleMember
	_, err = env.Engine.UpdateProfile(env.Ctx, env.Admin, env.Admin.ID, engine.ProfileUpdateOptions{Role: &adminRole})
	wantDenied(t, err, policy.SelfActionNotAllowed)

	promoted, err := env.Engine.UpdateProfile(env.Ctx, env.Admin, env.Member.ID, engine.ProfileUpdateOptions{Role: &role})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Role != domain.RoleManager {
		t.Fatalf("role = %s, want manager", promoted.Role)
	}

	name := "New Name"
	if _, err := env.Engine.UpdateProfile(env.Ctx, env.Member2, env.Member2.ID, engine.ProfileUpdateOptions{Name: &name}); err != nil {
		t.Fatalf("self update: %v", err)
	}
	_, err = env.Engine.UpdateProfile(env.Ctx, env.Member2, env.Member.ID, engine.ProfileUpdateOptions{Name: &name})
	wantDenied(t, err, policy.NotOwner)
}

func TestProfileDeleteIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	err := env.Engine.DeleteProfile(env.Ctx, env.Manager, env.Member.ID)
	wantDenied(t, err, policy.InsufficientRole)
	if err := env.Engine.DeleteProfile(env.Ctx, env.Admin, env.Member.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestNotificationAudiences(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.SendNotification(env.Ctx, env.Member, engine.NotificationSendOptions{
		Audience: domain.AudiencePublic,
		Subject:  "nope",
	})
	wantDenied(t, err, policy.InsufficientRole)

	// Public narrows the recipient set to admins and managers.
	pub, err := env.Engine.SendNotification(env.Ctx, env.Manager, engine.NotificationSendOptions{
		Audience: domain.AudiencePublic,
		Subject:  "All hands",
	})
	if err != nil {
		t.Fatalf("send public: %v", err)
	}
	if len(pub.Recipients) != 2 {
		t.Fatalf("public recipients = %d, want 2 (admin+manager)", len(pub.Recipients))
	}
	for _, r := range pub.Recipients {
		if r.Email == "milo@corp.test" || r.Email == "nora@corp.test" {
			t.Fatalf("member leaked into public recipients: %s", r.Email)
		}
	}

	priv, err := env.Engine.SendNotification(env.Ctx, env.Admin, engine.NotificationSendOptions{
		Audience: domain.AudiencePrivate,
		Subject:  "For Milo",
		ToEmails: []string{"milo@corp.test"},
	})
	if err != nil {
		t.Fatalf("send private: %v", err)
	}

	// Member sees the public notification and their private one, not the
	// manager's copy of anything else.
	visible, err := env.Engine.ListNotifications(env.Ctx, env.Member)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("member sees %d notifications, want 2", len(visible))
	}

	other, err := env.Engine.ListNotifications(env.Ctx, env.Member2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(other) != 1 || other[0].ID != pub.ID {
		t.Fatalf("second member should only see the public notification")
	}

	if err := env.Engine.MarkNotificationRead(env.Ctx, env.Member, priv.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	_, err = env.Engine.GetNotification(env.Ctx, env.Member2, priv.ID)
	wantDenied(t, err, policy.NotOwner)

	err = env.Engine.DeleteNotification(env.Ctx, env.Member, pub.ID)
	wantDenied(t, err, policy.InsufficientRole)
	if err := env.Engine.DeleteNotification(env.Ctx, env.Manager, pub.ID); err != nil {
		t.Fatalf("manager delete: %v", err)
	}
}

func TestSingleProjectManagerEnforced(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, env.Admin, "Zephyr", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := env.Engine.AddParticipant(env.Ctx, env.Admin, p.ID, env.Manager.ID, domain.ProjectManager); err != nil {
		t.Fatalf("add first manager: %v", err)
	}
	_, err = env.Engine.AddParticipant(env.Ctx, env.Admin, p.ID, env.Member.ID, domain.ProjectManager)
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second project-manager: got %v, want ConflictError", err)
	}
	// Re-assigning the same user is not a conflict.
	if _, err := env.Engine.AddParticipant(env.Ctx, env.Admin, p.ID, env.Manager.ID, domain.ProjectManager); err != nil {
		t.Fatalf("re-add same manager: %v", err)
	}
}

func TestEventsAreRecorded(t *testing.T) {
	env := newTestEnv(t)
	_, task := env.projectWithTask(t, env.Member)
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "ongoing"); err != nil {
		t.Fatalf("update: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "task.status_changed", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].EntityID != task.ID || evts[0].ActorID != env.Member.ID {
		t.Fatalf("event row = %+v, want status change by member", evts)
	}
}

func TestBootstrapOnlyOnEmptyOrg(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Bootstrap(env.Ctx, "Second Admin", "second@corp.test")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("bootstrap on populated org: got %v, want ConflictError", err)
	}
}
