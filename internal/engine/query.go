package engine

import (
	"context"
	"strings"
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func normalizePage(p domain.PageRequest) domain.PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (e Engine) pageTasks(ctx context.Context, f repo.TaskFilters, p domain.PageRequest) (domain.TaskPage, error) {
	p = normalizePage(p)
	items, total, err := e.Repo.PageTasks(ctx, f, p)
	if err != nil {
		return domain.TaskPage{}, err
	}
	return domain.TaskPage{Items: items, Total: total, Page: p.Page, Size: p.Size}, nil
}

// ListTasks returns one page of all tasks, newest first.
func (e Engine) ListTasks(ctx context.Context, p domain.PageRequest) (domain.TaskPage, error) {
	return e.pageTasks(ctx, repo.TaskFilters{}, p)
}

func (e Engine) TasksByAssignee(ctx context.Context, userID string, p domain.PageRequest) (domain.TaskPage, error) {
	if _, err := e.resolveUser(ctx, userID); err != nil {
		return domain.TaskPage{}, err
	}
	return e.pageTasks(ctx, repo.TaskFilters{AssigneeID: userID}, p)
}

func (e Engine) TasksByTeam(ctx context.Context, teamID string, p domain.PageRequest) (domain.TaskPage, error) {
	if _, err := e.resolveTeam(ctx, teamID); err != nil {
		return domain.TaskPage{}, err
	}
	return e.pageTasks(ctx, repo.TaskFilters{TeamID: teamID}, p)
}

func (e Engine) TasksByStatus(ctx context.Context, status domain.TaskStatus, p domain.PageRequest) (domain.TaskPage, error) {
	if !status.Valid() {
		return domain.TaskPage{}, InvalidArgumentError{Reason: "invalid status " + string(status)}
	}
	return e.pageTasks(ctx, repo.TaskFilters{Status: status}, p)
}

func (e Engine) TasksByModule(ctx context.Context, module domain.TaskModule, p domain.PageRequest) (domain.TaskPage, error) {
	if !module.Valid() {
		return domain.TaskPage{}, InvalidArgumentError{Reason: "invalid module " + string(module)}
	}
	return e.pageTasks(ctx, repo.TaskFilters{Module: module}, p)
}

// OverdueTasks lists tasks due strictly before now that are not completed,
// earliest due first.
func (e Engine) OverdueTasks(ctx context.Context, p domain.PageRequest) (domain.TaskPage, error) {
	now := e.now().UTC().Format(time.RFC3339)
	return e.pageTasks(ctx, repo.TaskFilters{
		DueBefore:      now,
		ExcludeStatus:  domain.StatusCompleted,
		OrderByDueDate: true,
	}, p)
}

// TasksDueToday lists open tasks due inside the current UTC day.
func (e Engine) TasksDueToday(ctx context.Context, p domain.PageRequest) (domain.TaskPage, error) {
	now := e.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return e.pageTasks(ctx, repo.TaskFilters{
		DueFrom:        start.Format(time.RFC3339),
		DueBefore:      end.Format(time.RFC3339),
		ExcludeStatus:  domain.StatusCompleted,
		OrderByDueDate: true,
	}, p)
}

// UpcomingTasks lists open tasks due inside [start, end], both inclusive.
func (e Engine) UpcomingTasks(ctx context.Context, start, end time.Time, p domain.PageRequest) (domain.TaskPage, error) {
	if end.Before(start) {
		return domain.TaskPage{}, InvalidArgumentError{Reason: "end of range is before its start"}
	}
	return e.pageTasks(ctx, repo.TaskFilters{
		DueFrom:        start.UTC().Format(time.RFC3339),
		DueTo:          end.UTC().Format(time.RFC3339),
		ExcludeStatus:  domain.StatusCompleted,
		OrderByDueDate: true,
	}, p)
}

func (e Engine) UnassignedTasks(ctx context.Context, p domain.PageRequest) (domain.TaskPage, error) {
	return e.pageTasks(ctx, repo.TaskFilters{Unassigned: true}, p)
}

// TasksByRelatedObject returns every task linked to the given CRM object,
// unpaginated.
func (e Engine) TasksByRelatedObject(ctx context.Context, objectType string, objectID int64) ([]domain.Task, error) {
	if strings.TrimSpace(objectType) == "" {
		return nil, InvalidArgumentError{Reason: "object type is required"}
	}
	return e.Repo.TasksByRelatedObject(ctx, objectType, objectID)
}

// Subtasks returns the direct children of a task, oldest first. An unknown
// parent id yields an empty list rather than an error.
func (e Engine) Subtasks(ctx context.Context, parentID string) ([]domain.Task, error) {
	return e.Repo.Subtasks(ctx, parentID)
}

// SearchTasks matches the term case-insensitively against titles and
// descriptions, then pages the matches in memory. The corpus is small
// enough that a full scan beats maintaining a search index.
func (e Engine) SearchTasks(ctx context.Context, term string, p domain.PageRequest) (domain.TaskPage, error) {
	p = normalizePage(p)
	all, err := e.Repo.ListAllTasks(ctx)
	if err != nil {
		return domain.TaskPage{}, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	var matches []domain.Task
	for _, t := range all {
		if needle == "" ||
			strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Description), needle) {
			matches = append(matches, t)
		}
	}
	total := len(matches)
	lo := p.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + p.Size
	if hi > total {
		hi = total
	}
	return domain.TaskPage{Items: matches[lo:hi], Total: total, Page: p.Page, Size: p.Size}, nil
}
