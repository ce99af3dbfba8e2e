package domain

// Role is a user's global role carried inside the signed token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// MemberRole is a membership role scoped to a single project.
type MemberRole string

const (
	MemberLeader MemberRole = "leader"
	MemberMember MemberRole = "member"
)

func (r MemberRole) Valid() bool {
	return r == MemberLeader || r == MemberMember
}

// TaskStatus is the kanban column state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "inProgress"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

// CreationStatus tracks how far project setup has progressed.
type CreationStatus string

const (
	CreationTasks      CreationStatus = "tasks"
	CreationManagement CreationStatus = "management"
	CreationComplete   CreationStatus = "complete"
)

func (s CreationStatus) Valid() bool {
	return s == CreationTasks || s == CreationManagement || s == CreationComplete
}

// Identity is the verified caller derived from a bearer token.
// It is rebuilt on every request and never persisted.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// TeamMember binds a user to a project with exactly one role.
type TeamMember struct {
	UserID string     `json:"user_id"`
	Role   MemberRole `json:"role" enum:"leader,member"`
}

type Project struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	StartDate      string         `json:"start_date" format:"date-time"`
	EndDate        string         `json:"end_date" format:"date-time"`
	AllocatedHours float64        `json:"allocated_hours"`
	CreatorID      string         `json:"creator_id"`
	TeamMembers    []TeamMember   `json:"team_members"`
	Lists          []string       `json:"lists"`
	CreationStatus CreationStatus `json:"creation_status" enum:"tasks,management,complete"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// Leader reports whether userID holds the leader role on the project.
func (p Project) Leader(userID string) bool {
	for _, m := range p.TeamMembers {
		if m.UserID == userID && m.Role == MemberLeader {
			return true
		}
	}
	return false
}

// Member reports whether userID holds the member role on the project.
func (p Project) Member(userID string) bool {
	for _, m := range p.TeamMembers {
		if m.UserID == userID && m.Role == MemberMember {
			return true
		}
	}
	return false
}

// OnTeam reports whether userID appears in the team with either role.
func (p Project) OnTeam(userID string) bool {
	for _, m := range p.TeamMembers {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type List struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	Tasks     []string `json:"tasks"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

// AssignedMember is a denormalized team-membership snapshot on a task,
// plus per-member hour tracking.
type AssignedMember struct {
	UserID         string     `json:"user_id"`
	Username       string     `json:"username"`
	Role           MemberRole `json:"role" enum:"leader,member"`
	AllocatedHours float64    `json:"allocated_hours"`
	UsedHours      float64    `json:"used_hours"`
}

type Task struct {
	ID              string           `json:"id"`
	ListID          string           `json:"list_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	AssignedMembers []AssignedMember `json:"assigned_members"`
	HoursAllocated  float64          `json:"hours_allocated"`
	HoursUsed       float64          `json:"hours_used"`
	Status          TaskStatus       `json:"status" enum:"todo,inProgress,done"`
	SubTasks        []SubTask        `json:"sub_tasks"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
	UpdatedAt       string           `json:"updated_at" format:"date-time"`
}

// Assigned reports whether userID appears in the task's assigned members.
func (t Task) Assigned(userID string) bool {
	for _, m := range t.AssignedMembers {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type SubTask struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// TemplateTask and TemplateList describe the shape a template stamps
// into a project; they reference no live entities.
type TemplateTask struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type TemplateList struct {
	Name  string         `json:"name"`
	Tasks []TemplateTask `json:"tasks"`
}

type TaskTemplate struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Lists     []TemplateList `json:"lists"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
