package server

import (
	"encoding/json"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

// Request payloads

type RelatedObjectRequest struct {
	ObjectType       string  `json:"object_type"`
	ObjectID         int64   `json:"object_id"`
	RelationshipType *string `json:"relationship_type,omitempty"`
}

type CreateTaskRequest struct {
	Title          string                 `json:"title"`
	Description    *string                `json:"description,omitempty"`
	DueDate        *string                `json:"due_date,omitempty" format:"date-time"`
	ReminderTime   *string                `json:"reminder_time,omitempty" format:"date-time"`
	Priority       *string                `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Module         *string                `json:"module,omitempty" enum:"crm,accounting,hr,operations,global"`
	EstimatedHours *float64               `json:"estimated_hours,omitempty"`
	AssignedToID   *string                `json:"assigned_to_id,omitempty"`
	TeamID         *string                `json:"team_id,omitempty"`
	ParentTaskID   *string                `json:"parent_task_id,omitempty"`
	RelatedObjects []RelatedObjectRequest `json:"related_objects,omitempty"`
}

type UpdateTaskRequest struct {
	Title                string   `json:"title"`
	Description          *string  `json:"description,omitempty"`
	DueDate              *string  `json:"due_date,omitempty" format:"date-time"`
	ReminderTime         *string  `json:"reminder_time,omitempty" format:"date-time"`
	Priority             string   `json:"priority" enum:"low,medium,high,critical"`
	Status               string   `json:"status" enum:"not_started,in_progress,completed,deferred,blocked"`
	CompletionPercentage int      `json:"completion_percentage"`
	CompletionDate       *string  `json:"completion_date,omitempty" format:"date-time"`
	EstimatedHours       *float64 `json:"estimated_hours,omitempty"`
	ActualHours          *float64 `json:"actual_hours,omitempty"`
	Module               string   `json:"module" enum:"crm,accounting,hr,operations,global"`
	AssignedToID         *string  `json:"assigned_to_id,omitempty"`
	TeamID               *string  `json:"team_id,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" enum:"not_started,in_progress,completed,deferred,blocked"`
}

type UpdateCompletionRequest struct {
	CompletionPercentage int `json:"completion_percentage" minimum:"0" maximum:"100"`
}

type CreateUserRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

type CreateTeamRequest struct {
	Name string `json:"name"`
}

// Response payloads

type RelatedObjectResponse struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	ObjectType       string  `json:"object_type"`
	ObjectID         int64   `json:"object_id"`
	RelationshipType *string `json:"relationship_type,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID                   string                  `json:"id"`
	Title                string                  `json:"title"`
	Description          string                  `json:"description,omitempty"`
	DueDate              *string                 `json:"due_date,omitempty" format:"date-time"`
	ReminderTime         *string                 `json:"reminder_time,omitempty" format:"date-time"`
	Priority             string                  `json:"priority" enum:"low,medium,high,critical"`
	Status               string                  `json:"status" enum:"not_started,in_progress,completed,deferred,blocked"`
	CompletionPercentage int                     `json:"completion_percentage"`
	CompletionDate       *string                 `json:"completion_date,omitempty" format:"date-time"`
	EstimatedHours       *float64                `json:"estimated_hours,omitempty"`
	ActualHours          *float64                `json:"actual_hours,omitempty"`
	AssignedToID         *string                 `json:"assigned_to_id,omitempty"`
	CreatedByID          string                  `json:"created_by_id"`
	TeamID               *string                 `json:"team_id,omitempty"`
	ParentTaskID         *string                 `json:"parent_task_id,omitempty"`
	Module               string                  `json:"module" enum:"crm,accounting,hr,operations,global"`
	RelatedObjects       []RelatedObjectResponse `json:"related_objects,omitempty"`
	CreatedAt            string                  `json:"created_at" format:"date-time"`
	UpdatedAt            string                  `json:"updated_at" format:"date-time"`
}

type TaskPageResponse struct {
	Items []TaskResponse `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TeamResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func relatedObjectResponse(ro domain.TaskRelatedObject) RelatedObjectResponse {
	return RelatedObjectResponse{
		ID:               ro.ID,
		TaskID:           ro.TaskID,
		ObjectType:       ro.ObjectType,
		ObjectID:         ro.ObjectID,
		RelationshipType: ro.RelationshipType,
		CreatedAt:        ro.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:                   t.ID,
		Title:                t.Title,
		Description:          t.Description,
		DueDate:              t.DueDate,
		ReminderTime:         t.ReminderTime,
		Priority:             string(t.Priority),
		Status:               string(t.Status),
		CompletionPercentage: t.CompletionPercentage,
		CompletionDate:       t.CompletionDate,
		EstimatedHours:       t.EstimatedHours,
		ActualHours:          t.ActualHours,
		AssignedToID:         t.AssignedToID,
		CreatedByID:          t.CreatedByID,
		TeamID:               t.TeamID,
		ParentTaskID:         t.ParentTaskID,
		Module:               string(t.Module),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
	for _, ro := range t.RelatedObjects {
		resp.RelatedObjects = append(resp.RelatedObjects, relatedObjectResponse(ro))
	}
	return resp
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func taskPageResponse(p domain.TaskPage) TaskPageResponse {
	return TaskPageResponse{
		Items: mapTasks(p.Items),
		Total: p.Total,
		Page:  p.Page,
		Size:  p.Size,
	}
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func teamResponse(t domain.Team) TeamResponse {
	return TeamResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

func eventResponse(e domain.Event) EventResponse {
	var payload map[string]any
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func createOptions(req CreateTaskRequest) engine.TaskCreateOptions {
	opts := engine.TaskCreateOptions{
		Title:          req.Title,
		Description:    deref(req.Description),
		DueDate:        deref(req.DueDate),
		ReminderTime:   deref(req.ReminderTime),
		Priority:       domain.TaskPriority(deref(req.Priority)),
		Module:         domain.TaskModule(deref(req.Module)),
		EstimatedHours: req.EstimatedHours,
		AssignedToID:   deref(req.AssignedToID),
		TeamID:         deref(req.TeamID),
		ParentTaskID:   deref(req.ParentTaskID),
	}
	for _, ro := range req.RelatedObjects {
		opts.RelatedObjects = append(opts.RelatedObjects, engine.RelatedObjectSpec{
			ObjectType:       ro.ObjectType,
			ObjectID:         ro.ObjectID,
			RelationshipType: deref(ro.RelationshipType),
		})
	}
	return opts
}

func updateParams(req UpdateTaskRequest) engine.TaskUpdateParams {
	return engine.TaskUpdateParams{
		Title:                req.Title,
		Description:          deref(req.Description),
		DueDate:              req.DueDate,
		ReminderTime:         req.ReminderTime,
		Priority:             domain.TaskPriority(req.Priority),
		Status:               domain.TaskStatus(req.Status),
		CompletionPercentage: req.CompletionPercentage,
		CompletionDate:       req.CompletionDate,
		EstimatedHours:       req.EstimatedHours,
		ActualHours:          req.ActualHours,
		Module:               domain.TaskModule(req.Module),
		AssignedToID:         req.AssignedToID,
		TeamID:               req.TeamID,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
