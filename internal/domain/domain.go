package domain

// Role is the org-wide role carried by every user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// Actor is the request-scoped identity every operation is authorized against.
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role" enum:"admin,manager,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Email: u.Email}
}

type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	State        string        `json:"state" enum:"ongoing,deployment,completed,paused,cancelled"`
	Participants []Participant `json:"participants,omitempty"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
}

// Participant attaches a user to a project with an in-project role.
type Participant struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	RoleInProject string `json:"role_in_project" enum:"project-manager,project-member"`
}

const (
	ProjectManager = "project-manager"
	ProjectMember  = "project-member"
)

type Task struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status" enum:"pending,ongoing,deployment,completed"`
	CreatedBy   string          `json:"created_by"`
	AssignedBy  *string         `json:"assigned_by,omitempty"`
	Assignees   []TaskAssignee  `json:"assignees,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	Tickets     []Ticket        `json:"tickets,omitempty"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

type TaskAssignee struct {
	UserID string `json:"user_id"`
	State  string `json:"state,omitempty"`
}

type ChecklistItem struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Item        string `json:"item"`
	IsCompleted bool   `json:"is_completed"`
}

// Ticket is an issue tracked under a task. AssignedTo is nil while the
// ticket is unassigned.
type Ticket struct {
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

type Attendance struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"`
	WorkMode       string  `json:"work_mode" enum:"office,wfh"`
	ApprovalStatus string  `json:"approval_status" enum:"pending,approved,rejected"`
	ApprovedBy     *string `json:"approved_by,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Leave struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	LeaveType string  `json:"leave_type" enum:"paid,sick,casual"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Reason    string  `json:"reason,omitempty"`
	Status    string  `json:"status" enum:"pending,approved,rejected"`
	DecidedBy *string `json:"decided_by,omitempty"`
	DecidedAt *string `json:"decided_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// Audience controls who can see a notification: public reaches every admin
// and manager, private reaches only the addressed recipients.
type Audience string

const (
	AudiencePublic  Audience = "public"
	AudiencePrivate Audience = "private"
)

type Notification struct {
	ID         string      `json:"id"`
	FromEmail  string      `json:"from_email"`
	Audience   Audience    `json:"audience" enum:"public,private"`
	Subject    string      `json:"subject"`
	Message    string      `json:"message,omitempty"`
	Recipients []Recipient `json:"recipients,omitempty"`
	CreatedAt  string      `json:"created_at" format:"date-time"`
}

type Recipient struct {
	Email string `json:"email"`
	State string `json:"state" enum:"read,unread"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
