package server

import (
	"teamboard/internal/domain"
	"teamboard/internal/engine"
)

type TeamMemberPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"leader,member"`
}

func teamMembers(in []TeamMemberPayload) []domain.TeamMember {
	out := make([]domain.TeamMember, 0, len(in))
	for _, m := range in {
		out = append(out, domain.TeamMember{UserID: m.UserID, Role: domain.MemberRole(m.Role)})
	}
	return out
}

type CreateProjectRequest struct {
	Name           string              `json:"name" minLength:"1"`
	Description    string              `json:"description,omitempty"`
	StartDate      string              `json:"start_date" format:"date-time"`
	EndDate        string              `json:"end_date" format:"date-time"`
	AllocatedHours float64             `json:"allocated_hours,omitempty"`
	TeamMembers    []TeamMemberPayload `json:"team_members,omitempty"`
}

type UpdateProjectRequest struct {
	Name           *string             `json:"name,omitempty"`
	Description    *string             `json:"description,omitempty"`
	StartDate      *string             `json:"start_date,omitempty" format:"date-time"`
	EndDate        *string             `json:"end_date,omitempty" format:"date-time"`
	AllocatedHours *float64            `json:"allocated_hours,omitempty"`
	CreationStatus *string             `json:"creation_status,omitempty" enum:"tasks,management,complete"`
	TeamMembers    []TeamMemberPayload `json:"team_members,omitempty"`
}

type CreateListRequest struct {
	ProjectID string `json:"project_id" minLength:"1"`
	Name      string `json:"name" minLength:"1"`
}

type UpdateListRequest struct {
	Name string `json:"name" minLength:"1"`
}

type AssignmentPayload struct {
	UserID         string  `json:"user_id"`
	AllocatedHours float64 `json:"allocated_hours,omitempty"`
}

func assignments(in []AssignmentPayload) []engine.AssignmentInput {
	out := make([]engine.AssignmentInput, 0, len(in))
	for _, a := range in {
		out = append(out, engine.AssignmentInput{UserID: a.UserID, AllocatedHours: a.AllocatedHours})
	}
	return out
}

type CreateTaskRequest struct {
	ListID          string              `json:"list_id" minLength:"1"`
	Name            string              `json:"name" minLength:"1"`
	Description     string              `json:"description,omitempty"`
	HoursAllocated  float64             `json:"hours_allocated,omitempty"`
	AssignedMembers []AssignmentPayload `json:"assigned_members,omitempty"`
}

type UpdateTaskRequest struct {
	Name            *string             `json:"name,omitempty"`
	Description     *string             `json:"description,omitempty"`
	HoursAllocated  *float64            `json:"hours_allocated,omitempty"`
	HoursUsed       *float64            `json:"hours_used,omitempty"`
	Status          *string             `json:"status,omitempty" enum:"todo,inProgress,done"`
	AssignedMembers []AssignmentPayload `json:"assigned_members,omitempty"`
}

type CreateSubTaskRequest struct {
	Name string `json:"name" minLength:"1"`
}

type UpdateSubTaskRequest struct {
	Name      *string `json:"name,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

type TemplateRequest struct {
	Name  string                `json:"name" minLength:"1"`
	Lists []domain.TemplateList `json:"lists,omitempty"`
}

type UpdateTemplateRequest struct {
	Name  *string               `json:"name,omitempty"`
	Lists []domain.TemplateList `json:"lists,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" minLength:"1"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
}

type RegisterResponse struct {
	User string `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}
