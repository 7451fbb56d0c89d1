package domain

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusDeferred   TaskStatus = "deferred"
	StatusBlocked    TaskStatus = "blocked"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusDeferred, StatusBlocked:
		return true
	}
	return false
}

// TaskPriority ranks how urgent a task is.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TaskModule tags which business area a task belongs to.
type TaskModule string

const (
	ModuleCRM        TaskModule = "crm"
	ModuleAccounting TaskModule = "accounting"
	ModuleHR         TaskModule = "hr"
	ModuleOperations TaskModule = "operations"
	ModuleGlobal     TaskModule = "global"
)

func (m TaskModule) Valid() bool {
	switch m {
	case ModuleCRM, ModuleAccounting, ModuleHR, ModuleOperations, ModuleGlobal:
		return true
	}
	return false
}

const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
)

type Task struct {
	ID                   string              `json:"id"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	DueDate              *string             `json:"due_date,omitempty" format:"date-time"`
	ReminderTime         *string             `json:"reminder_time,omitempty" format:"date-time"`
	Priority             TaskPriority        `json:"priority" enum:"low,medium,high,critical"`
	Status               TaskStatus          `json:"status" enum:"not_started,in_progress,completed,deferred,blocked"`
	CompletionPercentage int                 `json:"completion_percentage"`
	CompletionDate       *string             `json:"completion_date,omitempty" format:"date-time"`
	EstimatedHours       *float64            `json:"estimated_hours,omitempty"`
	ActualHours          *float64            `json:"actual_hours,omitempty"`
	AssignedToID         *string             `json:"assigned_to_id,omitempty"`
	CreatedByID          string              `json:"created_by_id"`
	TeamID               *string             `json:"team_id,omitempty"`
	ParentTaskID         *string             `json:"parent_task_id,omitempty"`
	Module               TaskModule          `json:"module" enum:"crm,accounting,hr,operations,global"`
	RelatedObjects       []TaskRelatedObject `json:"related_objects,omitempty"`
	CreatedAt            string              `json:"created_at" format:"date-time"`
	UpdatedAt            string              `json:"updated_at" format:"date-time"`
}

// TaskRelatedObject links a task to an entity outside this subsystem.
// object_id is opaque; no referential integrity is enforced against the
// external entity's own store.
type TaskRelatedObject struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	ObjectType       string  `json:"object_type"`
	ObjectID         int64   `json:"object_id"`
	RelationshipType *string `json:"relationship_type,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

// User is a lightweight identity record resolved by the user directory.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Team is a lightweight identity record resolved by the team directory.
type Team struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// PageRequest selects a zero-based page of a filtered result set.
type PageRequest struct {
	Page int
	Size int
}

// Offset is the index of the first element on the page.
func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return p.Page * p.Size
}

// TaskPage is one page of tasks plus the total size of the filtered set.
type TaskPage struct {
	Items []Task `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json"`
}
