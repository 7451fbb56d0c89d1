package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

// UserDirectory resolves a user id to an identity record.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// TeamDirectory resolves a team id to an identity record.
type TeamDirectory interface {
	GetTeam(ctx context.Context, id string) (domain.Team, error)
}

// Engine owns every task mutation and read. Any operation touching more
// than one row runs inside a single transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Users  UserDirectory
	Teams  TeamDirectory
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Users:  r,
		Teams:  r,
		Events: events.Writer{},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// maxHierarchyDepth bounds both the ancestor walk at creation and the
// cascade recursion at deletion.
const maxHierarchyDepth = 64

// RelatedObjectSpec describes a polymorphic link to create alongside a task.
type RelatedObjectSpec struct {
	ObjectType       string
	ObjectID         int64
	RelationshipType string
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title          string
	Description    string
	DueDate        string
	ReminderTime   string
	Priority       domain.TaskPriority
	Module         domain.TaskModule
	EstimatedHours *float64
	AssignedToID   string
	TeamID         string
	ParentTaskID   string
	RelatedObjects []RelatedObjectSpec
}

// CreateTask validates and persists a new task plus its initial related
// objects atomically. Every referenced id must resolve or nothing is written.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions, creatorID string) (domain.Task, error) {
	if err := validateTitle(opts.Title); err != nil {
		return domain.Task{}, err
	}
	if err := validateDescription(opts.Description); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, InvalidArgumentError{Reason: "invalid priority " + string(opts.Priority)}
	}
	if opts.Module == "" {
		opts.Module = domain.ModuleGlobal
	}
	if !opts.Module.Valid() {
		return domain.Task{}, InvalidArgumentError{Reason: "invalid module " + string(opts.Module)}
	}
	if err := validTimestamp("due_date", opts.DueDate); err != nil {
		return domain.Task{}, err
	}
	if err := validTimestamp("reminder_time", opts.ReminderTime); err != nil {
		return domain.Task{}, err
	}
	for _, spec := range opts.RelatedObjects {
		if strings.TrimSpace(spec.ObjectType) == "" {
			return domain.Task{}, ValidationError{Field: "object_type", Reason: "is required"}
		}
	}
	if _, err := e.resolveUser(ctx, creatorID); err != nil {
		return domain.Task{}, err
	}
	if opts.AssignedToID != "" {
		if _, err := e.resolveUser(ctx, opts.AssignedToID); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.TeamID != "" {
		if _, err := e.resolveTeam(ctx, opts.TeamID); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.ParentTaskID != "" {
		ok, err := e.Repo.TaskExists(ctx, opts.ParentTaskID)
		if err != nil {
			return domain.Task{}, err
		}
		if !ok {
			return domain.Task{}, NotFoundError{Kind: "task", ID: opts.ParentTaskID}
		}
		if err := e.ensureHierarchyDepth(ctx, opts.ParentTaskID); err != nil {
			return domain.Task{}, err
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:             uuid.New().String(),
		Title:          opts.Title,
		Description:    opts.Description,
		DueDate:        optionalString(opts.DueDate),
		ReminderTime:   optionalString(opts.ReminderTime),
		Priority:       opts.Priority,
		Status:         domain.StatusNotStarted,
		EstimatedHours: opts.EstimatedHours,
		AssignedToID:   optionalString(opts.AssignedToID),
		CreatedByID:    creatorID,
		TeamID:         optionalString(opts.TeamID),
		ParentTaskID:   optionalString(opts.ParentTaskID),
		Module:         opts.Module,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	for _, spec := range opts.RelatedObjects {
		ro := domain.TaskRelatedObject{
			ID:               uuid.New().String(),
			TaskID:           t.ID,
			ObjectType:       spec.ObjectType,
			ObjectID:         spec.ObjectID,
			RelationshipType: optionalString(spec.RelationshipType),
			CreatedAt:        now,
		}
		if err := e.Repo.InsertRelatedObject(ctx, tx, ro); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, creatorID, events.EventPayload{
		"title":  t.Title,
		"status": string(t.Status),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.GetTask(ctx, t.ID)
}

// GetTask returns a task with its related objects.
func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.getTask(ctx, id)
}

// TaskUpdateParams carry full-replace update fields. A nil AssignedToID or
// TeamID clears the reference; omission is not "leave unchanged".
type TaskUpdateParams struct {
	Title                string
	Description          string
	DueDate              *string
	ReminderTime         *string
	Priority             domain.TaskPriority
	Status               domain.TaskStatus
	CompletionPercentage int
	CompletionDate       *string
	EstimatedHours       *float64
	ActualHours          *float64
	Module               domain.TaskModule
	AssignedToID         *string
	TeamID               *string
}

func (e Engine) UpdateTask(ctx context.Context, id string, p TaskUpdateParams) (domain.Task, error) {
	if err := validateTitle(p.Title); err != nil {
		return domain.Task{}, err
	}
	if err := validateDescription(p.Description); err != nil {
		return domain.Task{}, err
	}
	if !p.Priority.Valid() {
		return domain.Task{}, InvalidArgumentError{Reason: "invalid priority " + string(p.Priority)}
	}
	if !p.Status.Valid() {
		return domain.Task{}, InvalidArgumentError{Reason: "invalid status " + string(p.Status)}
	}
	if !p.Module.Valid() {
		return domain.Task{}, InvalidArgumentError{Reason: "invalid module " + string(p.Module)}
	}
	if p.CompletionPercentage < 0 || p.CompletionPercentage > 100 {
		return domain.Task{}, InvalidArgumentError{Reason: "completion percentage must be between 0 and 100"}
	}
	if err := validTimestampPtr("due_date", p.DueDate); err != nil {
		return domain.Task{}, err
	}
	if err := validTimestampPtr("reminder_time", p.ReminderTime); err != nil {
		return domain.Task{}, err
	}
	if err := validTimestampPtr("completion_date", p.CompletionDate); err != nil {
		return domain.Task{}, err
	}
	t, err := e.getTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if p.AssignedToID != nil {
		if _, err := e.resolveUser(ctx, *p.AssignedToID); err != nil {
			return domain.Task{}, err
		}
	}
	if p.TeamID != nil {
		if _, err := e.resolveTeam(ctx, *p.TeamID); err != nil {
			return domain.Task{}, err
		}
	}

	t.Title = p.Title
	t.Description = p.Description
	t.DueDate = p.DueDate
	t.ReminderTime = p.ReminderTime
	t.Priority = p.Priority
	t.Status = p.Status
	t.CompletionPercentage = p.CompletionPercentage
	t.CompletionDate = p.CompletionDate
	t.EstimatedHours = p.EstimatedHours
	t.ActualHours = p.ActualHours
	t.Module = p.Module
	t.AssignedToID = p.AssignedToID
	t.TeamID = p.TeamID
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	if err := e.saveTask(ctx, t, "task.updated", events.EventPayload{"status": string(t.Status)}); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

// DeleteTask removes a task, every descendant depth-first, and every
// related object they own, in one transaction.
func (e Engine) DeleteTask(ctx context.Context, id string) error {
	t, err := e.getTask(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	deleted, err := e.deleteSubtree(ctx, tx, t.ID, 0)
	if err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", t.ID, "", events.EventPayload{
		"cascade": deleted,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteSubtree removes children before their parent so the parent_task_id
// reference never dangles. Absence of a row mid-cascade is a normal
// outcome, not a caller-visible error.
func (e Engine) deleteSubtree(ctx context.Context, tx *sql.Tx, id string, depth int) (int, error) {
	if depth > maxHierarchyDepth {
		return 0, InvalidArgumentError{Reason: "task hierarchy exceeds maximum cascade depth"}
	}
	children, err := e.Repo.ListChildIDs(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, child := range children {
		n, err := e.deleteSubtree(ctx, tx, child, depth+1)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if err := e.Repo.DeleteRelatedObjectsByTask(ctx, tx, id); err != nil {
		return deleted, err
	}
	if err := e.Repo.DeleteTaskRow(ctx, tx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return deleted, nil
		}
		return deleted, err
	}
	return deleted + 1, nil
}

func (e Engine) AssignTaskToUser(ctx context.Context, taskID, userID string) (domain.Task, error) {
	t, err := e.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := e.resolveUser(ctx, userID); err != nil {
		return domain.Task{}, err
	}
	t.AssignedToID = &userID
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.saveTask(ctx, t, "task.assigned", events.EventPayload{"user_id": userID}); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

func (e Engine) AssignTaskToTeam(ctx context.Context, taskID, teamID string) (domain.Task, error) {
	t, err := e.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := e.resolveTeam(ctx, teamID); err != nil {
		return domain.Task{}, err
	}
	t.TeamID = &teamID
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.saveTask(ctx, t, "task.assigned", events.EventPayload{"team_id": teamID}); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

// UpdateTaskStatus sets the status and reconciles the completion fields
// through the same derivation UpdateTaskCompletion uses, so either entry
// point leaves the pair consistent.
func (e Engine) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, InvalidArgumentError{Reason: "invalid status " + string(status)}
	}
	t, err := e.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	from := t.Status
	now := e.now().UTC().Format(time.RFC3339)
	reconcileStatus(&t, status, now)
	t.UpdatedAt = now
	if err := e.saveTask(ctx, t, "task.status", events.EventPayload{
		"from": string(from),
		"to":   string(t.Status),
	}); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

// UpdateTaskCompletion sets the completion percentage and derives the
// status from it.
func (e Engine) UpdateTaskCompletion(ctx context.Context, taskID string, percentage int) (domain.Task, error) {
	if percentage < 0 || percentage > 100 {
		return domain.Task{}, InvalidArgumentError{Reason: "completion percentage must be between 0 and 100"}
	}
	t, err := e.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	reconcileCompletion(&t, percentage, now)
	t.UpdatedAt = now
	if err := e.saveTask(ctx, t, "task.completion", events.EventPayload{
		"percentage": percentage,
		"status":     string(t.Status),
	}); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

func (e Engine) AddRelatedObjectToTask(ctx context.Context, taskID, objectType string, objectID int64, relationshipType string) (domain.Task, error) {
	if strings.TrimSpace(objectType) == "" {
		return domain.Task{}, ValidationError{Field: "object_type", Reason: "is required"}
	}
	t, err := e.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	ro := domain.TaskRelatedObject{
		ID:               uuid.New().String(),
		TaskID:           t.ID,
		ObjectType:       objectType,
		ObjectID:         objectID,
		RelationshipType: optionalString(relationshipType),
		CreatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRelatedObject(ctx, tx, ro); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.link.added", "task", t.ID, "", events.EventPayload{
		"object_type": objectType,
		"object_id":   objectID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

func (e Engine) RemoveRelatedObjectFromTask(ctx context.Context, taskID, relatedObjectID string) (domain.Task, error) {
	t, err := e.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	ro, err := e.Repo.GetRelatedObject(ctx, relatedObjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, NotFoundError{Kind: "related object", ID: relatedObjectID}
	}
	if err != nil {
		return domain.Task{}, err
	}
	if ro.TaskID != taskID {
		return domain.Task{}, InvalidArgumentError{Reason: "related object does not belong to the specified task"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRelatedObject(ctx, tx, relatedObjectID); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.link.removed", "task", t.ID, "", events.EventPayload{
		"object_type": ro.ObjectType,
		"object_id":   ro.ObjectID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.getTask(ctx, t.ID)
}

// reconcileStatus and reconcileCompletion are the only two writers of the
// status/percentage pair. Running them in either order converges on the
// same state.
func reconcileStatus(t *domain.Task, status domain.TaskStatus, now string) {
	t.Status = status
	switch status {
	case domain.StatusCompleted:
		t.CompletionPercentage = 100
		t.CompletionDate = &now
	case domain.StatusNotStarted:
		t.CompletionPercentage = 0
	}
}

func reconcileCompletion(t *domain.Task, percentage int, now string) {
	t.CompletionPercentage = percentage
	switch {
	case percentage == 100:
		t.Status = domain.StatusCompleted
		t.CompletionDate = &now
	case percentage > 0:
		t.Status = domain.StatusInProgress
	default:
		t.Status = domain.StatusNotStarted
	}
}

// saveTask persists a mutated task and its audit entry in one transaction.
func (e Engine) saveTask(ctx context.Context, t domain.Task, evtType string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, "task", t.ID, "", payload); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureHierarchyDepth walks the ancestor chain and rejects trees deeper
// than the cascade bound. A walk that never terminates inside the bound
// also covers the corrupt-cycle case.
func (e Engine) ensureHierarchyDepth(ctx context.Context, parentID string) error {
	cur := parentID
	for depth := 0; cur != ""; depth++ {
		// Rejecting one level before the cascade bound keeps every
		// creatable chain deletable.
		if depth >= maxHierarchyDepth {
			return InvalidArgumentError{Reason: "task hierarchy too deep"}
		}
		t, err := e.getTask(ctx, cur)
		if err != nil {
			return err
		}
		if t.ParentTaskID == nil {
			return nil
		}
		cur = *t.ParentTaskID
	}
	return nil
}

func (e Engine) getTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, NotFoundError{Kind: "task", ID: id}
	}
	return t, err
}

func (e Engine) resolveUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Users.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return u, NotFoundError{Kind: "user", ID: id}
	}
	return u, err
}

func (e Engine) resolveTeam(ctx context.Context, id string) (domain.Team, error) {
	t, err := e.Teams.GetTeam(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, NotFoundError{Kind: "team", ID: id}
	}
	return t, err
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ValidationError{Field: "title", Reason: "is required"}
	}
	if len(title) > domain.MaxTitleLength {
		return ValidationError{Field: "title", Reason: "exceeds 255 characters"}
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) > domain.MaxDescriptionLength {
		return ValidationError{Field: "description", Reason: "exceeds 1000 characters"}
	}
	return nil
}

func validTimestamp(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		return InvalidArgumentError{Reason: field + " must be an RFC3339 timestamp"}
	}
	return nil
}

func validTimestampPtr(field string, v *string) error {
	if v == nil {
		return nil
	}
	return validTimestamp(field, *v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
