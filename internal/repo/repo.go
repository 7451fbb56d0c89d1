package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,description,due_date,reminder_time,priority,status,completion_percentage,completion_date,estimated_hours,actual_hours,assigned_to_id,created_by_id,team_id,parent_task_id,module,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(sc rowScanner) (domain.Task, error) {
	var t domain.Task
	var description, dueDate, reminder, completion, assignee, team, parent sql.NullString
	var estimated, actual sql.NullFloat64
	err := sc.Scan(&t.ID, &t.Title, &description, &dueDate, &reminder, &t.Priority, &t.Status,
		&t.CompletionPercentage, &completion, &estimated, &actual, &assignee, &t.CreatedByID,
		&team, &parent, &t.Module, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if reminder.Valid {
		t.ReminderTime = &reminder.String
	}
	if completion.Valid {
		t.CompletionDate = &completion.String
	}
	if estimated.Valid {
		t.EstimatedHours = &estimated.Float64
	}
	if actual.Valid {
		t.ActualHours = &actual.Float64
	}
	if assignee.Valid {
		t.AssignedToID = &assignee.String
	}
	if team.Valid {
		t.TeamID = &team.String
	}
	if parent.Valid {
		t.ParentTaskID = &parent.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), nullableStringPtr(t.DueDate), nullableStringPtr(t.ReminderTime),
		string(t.Priority), string(t.Status), t.CompletionPercentage, nullableStringPtr(t.CompletionDate),
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), nullableStringPtr(t.AssignedToID),
		t.CreatedByID, nullableStringPtr(t.TeamID), nullableStringPtr(t.ParentTaskID), string(t.Module),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, due_date=?, reminder_time=?, priority=?, status=?, completion_percentage=?, completion_date=?, estimated_hours=?, actual_hours=?, assigned_to_id=?, team_id=?, parent_task_id=?, module=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullableStringPtr(t.DueDate), nullableStringPtr(t.ReminderTime),
		string(t.Priority), string(t.Status), t.CompletionPercentage, nullableStringPtr(t.CompletionDate),
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), nullableStringPtr(t.AssignedToID),
		nullableStringPtr(t.TeamID), nullableStringPtr(t.ParentTaskID), string(t.Module), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTaskRow removes a single task row; callers are responsible for
// having removed its subtasks and related objects first.
func (r Repo) DeleteTaskRow(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask loads a task together with its related object links.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	links, err := r.ListRelatedObjects(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.RelatedObjects = links
	return t, nil
}

// TaskExists reports whether a task row is present. Absence is a normal
// outcome here, not an error.
func (r Repo) TaskExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=? LIMIT 1`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListChildIDs returns ids of direct subtasks within a transaction.
func (r Repo) ListChildIDs(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE parent_task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Subtasks returns the direct children of a parent task, not the full subtree.
func (r Repo) Subtasks(ctx context.Context, parentID string) ([]domain.Task, error) {
	return queryList(ctx, r.DB,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_task_id=? ORDER BY created_at ASC, id ASC`,
		[]any{parentID}, scanTask)
}

// ListAllTasks returns every task, newest first. It backs the full-scan
// free-text search.
func (r Repo) ListAllTasks(ctx context.Context) ([]domain.Task, error) {
	return queryList(ctx, r.DB,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`,
		nil, scanTask)
}

// TasksByRelatedObject returns every task holding a link to the given
// external object.
func (r Repo) TasksByRelatedObject(ctx context.Context, objectType string, objectID int64) ([]domain.Task, error) {
	cols := "t." + strings.ReplaceAll(taskColumns, ",", ",t.")
	return queryList(ctx, r.DB,
		`SELECT `+cols+` FROM tasks t
JOIN task_related_objects ro ON ro.task_id = t.id
WHERE ro.object_type=? AND ro.object_id=?
ORDER BY t.created_at DESC, t.id DESC`,
		[]any{objectType, objectID}, scanTask)
}

// TaskFilters narrows paged task queries. Zero values mean "no constraint".
type TaskFilters struct {
	AssigneeID     string
	TeamID         string
	Status         domain.TaskStatus
	Module         domain.TaskModule
	Unassigned     bool
	DueBefore      string
	DueFrom        string
	DueTo          string
	ExcludeStatus  domain.TaskStatus
	OrderByDueDate bool
}

// PageTasks returns one page of the filtered set plus its total size.
func (r Repo) PageTasks(ctx context.Context, f TaskFilters, page domain.PageRequest) ([]domain.Task, int, error) {
	var clauses []string
	var args []any
	if f.AssigneeID != "" {
		clauses = append(clauses, "assigned_to_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Module != "" {
		clauses = append(clauses, "module=?")
		args = append(args, string(f.Module))
	}
	if f.Unassigned {
		clauses = append(clauses, "assigned_to_id IS NULL")
	}
	if f.DueBefore != "" || f.DueFrom != "" || f.DueTo != "" {
		clauses = append(clauses, "due_date IS NOT NULL")
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date < ?")
		args = append(args, f.DueBefore)
	}
	if f.DueFrom != "" {
		clauses = append(clauses, "due_date >= ?")
		args = append(args, f.DueFrom)
	}
	if f.DueTo != "" {
		clauses = append(clauses, "due_date <= ?")
		args = append(args, f.DueTo)
	}
	if f.ExcludeStatus != "" {
		clauses = append(clauses, "status != ?")
		args = append(args, string(f.ExcludeStatus))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	order := " ORDER BY created_at DESC, id DESC"
	if f.OrderByDueDate {
		order = " ORDER BY due_date ASC, id ASC"
	}
	return queryPage(ctx, r.DB,
		`SELECT `+taskColumns+` FROM tasks`+where+order,
		`SELECT count(*) FROM tasks`+where,
		args, page.Size, page.Offset(), scanTask)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
