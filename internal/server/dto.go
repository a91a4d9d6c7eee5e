package server

import (
	"teamline/internal/config"
	"teamline/internal/domain"
)

// Request payloads

type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" format:"email"`
	Role  string `json:"role" enum:"admin,manager,member"`
}

type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty" format:"email"`
	Role  *string `json:"role,omitempty" enum:"admin,manager,member"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type SetProjectStateRequest struct {
	State string `json:"state" enum:"ongoing,deployment,completed,paused,cancelled"`
}

type AddParticipantRequest struct {
	UserID        string `json:"user_id"`
	RoleInProject string `json:"role_in_project" enum:"project-manager,project-member"`
}

type CreateTaskRequest struct {
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
	Checklist   []string `json:"checklist,omitempty"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" enum:"pending,ongoing,deployment,completed"`
}

type AddChecklistItemRequest struct {
	Item string `json:"item"`
}

type SetChecklistItemRequest struct {
	IsCompleted bool `json:"is_completed"`
}

type CreateTicketRequest struct {
	IssueTitle  string  `json:"issue_title"`
	Description *string `json:"description,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Tag         *string `json:"tag,omitempty"`
}

type UpdateTicketRequest struct {
	IssueTitle  *string `json:"issue_title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Status      *string `json:"status,omitempty" enum:"open,pending,completed"`
	Tag         *string `json:"tag,omitempty"`
}

type MarkAttendanceRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Date     string `json:"date,omitempty" format:"date"`
	WorkMode string `json:"work_mode" enum:"office,wfh"`
}

type DecisionRequest struct {
	Approve bool `json:"approve"`
}

type ApplyLeaveRequest struct {
	LeaveType string `json:"leave_type" enum:"paid,sick,casual"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	Reason    string `json:"reason,omitempty"`
}

type UpdateLeavePolicyRequest struct {
	Allowances map[string]int `json:"allowances"`
}

type SendNotificationRequest struct {
	Audience string   `json:"audience" enum:"public,private"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message,omitempty"`
	To       []string `json:"to,omitempty"`
}

type DevLoginRequest struct {
	Email string `json:"email" format:"email"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,manager,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ParticipantResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	RoleInProject string `json:"role_in_project" enum:"project-manager,project-member"`
}

type ProjectResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	State        string                `json:"state" enum:"ongoing,deployment,completed,paused,cancelled"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
	CreatedAt    string                `json:"created_at" format:"date-time"`
}

type TaskAssigneeResponse struct {
	UserID string `json:"user_id"`
	State  string `json:"state,omitempty"`
}

type ChecklistItemResponse struct {
	ID          string `json:"id"`
	Item        string `json:"item"`
	IsCompleted bool   `json:"is_completed"`
}

type TicketResponse struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	IssueTitle  string  `json:"issue_title"`
	Description string  `json:"description,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    string  `json:"priority" enum:"low,medium,high,urgent"`
	Status      string  `json:"status" enum:"open,pending,completed"`
	Tag         string  `json:"tag,omitempty"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string                  `json:"id"`
	ProjectID   string                  `json:"project_id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Status      string                  `json:"status" enum:"pending,ongoing,deployment,completed"`
	CreatedBy   string                  `json:"created_by"`
	AssignedBy  *string                 `json:"assigned_by,omitempty"`
	Assignees   []TaskAssigneeResponse  `json:"assignees,omitempty"`
	Checklist   []ChecklistItemResponse `json:"checklist,omitempty"`
	Tickets     []TicketResponse        `json:"tickets,omitempty"`
	CreatedAt   string                  `json:"created_at" format:"date-time"`
	UpdatedAt   string                  `json:"updated_at" format:"date-time"`
}

type AttendanceResponse struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Date           string  `json:"date" format:"date"`
	WorkMode       string  `json:"work_mode" enum:"office,wfh"`
	ApprovalStatus string  `json:"approval_status" enum:"pending,approved,rejected"`
	ApprovedBy     *string `json:"approved_by,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type LeaveResponse struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	LeaveType string  `json:"leave_type" enum:"paid,sick,casual"`
	StartDate string  `json:"start_date" format:"date"`
	EndDate   string  `json:"end_date" format:"date"`
	Reason    string  `json:"reason,omitempty"`
	Status    string  `json:"status" enum:"pending,approved,rejected"`
	DecidedBy *string `json:"decided_by,omitempty"`
	DecidedAt *string `json:"decided_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type LeavePolicyResponse struct {
	OrgID      string         `json:"org_id"`
	Allowances map[string]int `json:"allowances"`
}

type RecipientResponse struct {
	Email string `json:"email"`
	State string `json:"state" enum:"read,unread"`
}

type NotificationResponse struct {
	ID         string              `json:"id"`
	FromEmail  string              `json:"from_email"`
	Audience   string              `json:"audience" enum:"public,private"`
	Subject    string              `json:"subject"`
	Message    string              `json:"message,omitempty"`
	Recipients []RecipientResponse `json:"recipients,omitempty"`
	CreatedAt  string              `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role" enum:"admin,manager,member"`
	Source string `json:"source,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func projectResponse(p domain.Project) ProjectResponse {
	out := ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		State:       p.State,
		CreatedAt:   p.CreatedAt,
	}
	for _, pp := range p.Participants {
		out.Participants = append(out.Participants, ParticipantResponse(pp))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	out := TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedBy:   t.CreatedBy,
		AssignedBy:  t.AssignedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	for _, a := range t.Assignees {
		out.Assignees = append(out.Assignees, TaskAssigneeResponse(a))
	}
	for _, c := range t.Checklist {
		out.Checklist = append(out.Checklist, ChecklistItemResponse{ID: c.ID, Item: c.Item, IsCompleted: c.IsCompleted})
	}
	for _, k := range t.Tickets {
		out.Tickets = append(out.Tickets, ticketResponse(k))
	}
	return out
}

func ticketResponse(k domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          k.ID,
		TaskID:      k.TaskID,
		IssueTitle:  k.IssueTitle,
		Description: k.Description,
		AssignedTo:  k.AssignedTo,
		Priority:    k.Priority,
		Status:      k.Status,
		Tag:         k.Tag,
		CreatedBy:   k.CreatedBy,
		CreatedAt:   k.CreatedAt,
		UpdatedAt:   k.UpdatedAt,
	}
}

func attendanceResponse(a domain.Attendance) AttendanceResponse {
	return AttendanceResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Date:           a.Date,
		WorkMode:       a.WorkMode,
		ApprovalStatus: a.ApprovalStatus,
		ApprovedBy:     a.ApprovedBy,
		CreatedAt:      a.CreatedAt,
	}
}

func leaveResponse(l domain.Leave) LeaveResponse {
	return LeaveResponse{
		ID:        l.ID,
		UserID:    l.UserID,
		LeaveType: l.LeaveType,
		StartDate: l.StartDate,
		EndDate:   l.EndDate,
		Reason:    l.Reason,
		Status:    l.Status,
		DecidedBy: l.DecidedBy,
		DecidedAt: l.DecidedAt,
		CreatedAt: l.CreatedAt,
	}
}

func leavePolicyResponse(cfg *config.Config) LeavePolicyResponse {
	out := LeavePolicyResponse{Allowances: map[string]int{}}
	if cfg == nil {
		return out
	}
	out.OrgID = cfg.Org.ID
	for k, v := range cfg.Leave.Allowances {
		out.Allowances[k] = v
	}
	return out
}

func notificationResponse(n domain.Notification) NotificationResponse {
	out := NotificationResponse{
		ID:        n.ID,
		FromEmail: n.FromEmail,
		Audience:  string(n.Audience),
		Subject:   n.Subject,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
	for _, r := range n.Recipients {
		out.Recipients = append(out.Recipients, RecipientResponse(r))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapUsers(in []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(in))
	for _, u := range in {
		out = append(out, userResponse(u))
	}
	return out
}

func mapProjects(in []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(in))
	for _, p := range in {
		out = append(out, projectResponse(p))
	}
	return out
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

func mapTickets(in []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(in))
	for _, k := range in {
		out = append(out, ticketResponse(k))
	}
	return out
}

func mapAttendance(in []domain.Attendance) []AttendanceResponse {
	out := make([]AttendanceResponse, 0, len(in))
	for _, a := range in {
		out = append(out, attendanceResponse(a))
	}
	return out
}

func mapLeave(in []domain.Leave) []LeaveResponse {
	out := make([]LeaveResponse, 0, len(in))
	for _, l := range in {
		out = append(out, leaveResponse(l))
	}
	return out
}

func mapNotifications(in []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(in))
	for _, n := range in {
		out = append(out, notificationResponse(n))
	}
	return out
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, eventResponse(e))
	}
	return out
}

func strValue(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
