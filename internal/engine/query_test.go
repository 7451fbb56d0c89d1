package engine_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

func TestListTasksPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 25; i++ {
		env.mustCreate(t, engine.TaskCreateOptions{Title: fmt.Sprintf("Task %02d", i)})
	}

	page, err := env.Engine.ListTasks(env.Ctx, domain.PageRequest{Page: 0, Size: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 25 || len(page.Items) != 10 {
		t.Fatalf("page 0: total=%d items=%d", page.Total, len(page.Items))
	}

	last, err := env.Engine.ListTasks(env.Ctx, domain.PageRequest{Page: 2, Size: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(last.Items) != 5 {
		t.Fatalf("page 2: items=%d, want 5", len(last.Items))
	}

	beyond, err := env.Engine.ListTasks(env.Ctx, domain.PageRequest{Page: 8, Size: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(beyond.Items) != 0 || beyond.Total != 25 {
		t.Fatalf("page 8: items=%d total=%d", len(beyond.Items), beyond.Total)
	}
}

func TestPageDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, engine.TaskCreateOptions{Title: "one"})

	page, err := env.Engine.ListTasks(env.Ctx, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Page != 0 || page.Size != engine.DefaultPageSize {
		t.Fatalf("defaults: page=%d size=%d", page.Page, page.Size)
	}

	page, err = env.Engine.ListTasks(env.Ctx, domain.PageRequest{Page: 0, Size: 5000})
	if err != nil {
		t.Fatal(err)
	}
	if page.Size != engine.MaxPageSize {
		t.Fatalf("size = %d, want clamp to %d", page.Size, engine.MaxPageSize)
	}
}

func TestTasksByAssigneeAndTeam(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, engine.TaskCreateOptions{Title: "mine", AssignedToID: env.UserID})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "teams", TeamID: env.TeamID})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "nobody"})

	mine, err := env.Engine.TasksByAssignee(env.Ctx, env.UserID, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if mine.Total != 1 || mine.Items[0].Title != "mine" {
		t.Fatalf("assignee query: %+v", mine)
	}

	teams, err := env.Engine.TasksByTeam(env.Ctx, env.TeamID, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if teams.Total != 1 || teams.Items[0].Title != "teams" {
		t.Fatalf("team query: %+v", teams)
	}

	_, err = env.Engine.TasksByAssignee(env.Ctx, "ghost", domain.PageRequest{})
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "user" {
		t.Fatalf("unknown assignee: err = %v", err)
	}

	free, err := env.Engine.UnassignedTasks(env.Ctx, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if free.Total != 2 {
		t.Fatalf("unassigned = %d, want 2", free.Total)
	}
}

func TestTasksByStatusAndModule(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.TaskCreateOptions{Title: "a", Module: domain.ModuleCRM})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "b", Module: domain.ModuleHR})
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, a.ID, domain.StatusInProgress); err != nil {
		t.Fatal(err)
	}

	busy, err := env.Engine.TasksByStatus(env.Ctx, domain.StatusInProgress, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if busy.Total != 1 || busy.Items[0].ID != a.ID {
		t.Fatalf("status query: %+v", busy)
	}

	crm, err := env.Engine.TasksByModule(env.Ctx, domain.ModuleCRM, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if crm.Total != 1 || crm.Items[0].ID != a.ID {
		t.Fatalf("module query: %+v", crm)
	}

	var ierr engine.InvalidArgumentError
	if _, err := env.Engine.TasksByStatus(env.Ctx, "paused", domain.PageRequest{}); !errors.As(err, &ierr) {
		t.Fatalf("bad status: err = %v", err)
	}
	if _, err := env.Engine.TasksByModule(env.Ctx, "payroll", domain.PageRequest{}); !errors.As(err, &ierr) {
		t.Fatalf("bad module: err = %v", err)
	}
}

func TestDueDateQueries(t *testing.T) {
	env := newTestEnv(t)
	// Now is pinned to 2026-03-15T12:00:00Z in newTestEnv.
	overdue := env.mustCreate(t, engine.TaskCreateOptions{Title: "late", DueDate: "2026-03-10T09:00:00Z"})
	today := env.mustCreate(t, engine.TaskCreateOptions{Title: "today", DueDate: "2026-03-15T16:00:00Z"})
	soon := env.mustCreate(t, engine.TaskCreateOptions{Title: "soon", DueDate: "2026-03-20T09:00:00Z"})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "undated"})
	doneButLate := env.mustCreate(t, engine.TaskCreateOptions{Title: "done late", DueDate: "2026-03-01T09:00:00Z"})
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, doneButLate.ID, domain.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	late, err := env.Engine.OverdueTasks(env.Ctx, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if late.Total != 1 || late.Items[0].ID != overdue.ID {
		t.Fatalf("overdue: %+v", late)
	}

	due, err := env.Engine.TasksDueToday(env.Ctx, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if due.Total != 1 || due.Items[0].ID != today.ID {
		t.Fatalf("due today: %+v", due)
	}

	start := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	upcoming, err := env.Engine.UpcomingTasks(env.Ctx, start, end, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if upcoming.Total != 1 || upcoming.Items[0].ID != soon.ID {
		t.Fatalf("upcoming: %+v", upcoming)
	}

	var ierr engine.InvalidArgumentError
	if _, err := env.Engine.UpcomingTasks(env.Ctx, end, start, domain.PageRequest{}); !errors.As(err, &ierr) {
		t.Fatalf("inverted range: err = %v", err)
	}
}

func TestOverdueOrderedByDueDate(t *testing.T) {
	env := newTestEnv(t)
	later := env.mustCreate(t, engine.TaskCreateOptions{Title: "later", DueDate: "2026-03-12T00:00:00Z"})
	earlier := env.mustCreate(t, engine.TaskCreateOptions{Title: "earlier", DueDate: "2026-03-05T00:00:00Z"})

	late, err := env.Engine.OverdueTasks(env.Ctx, domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(late.Items) != 2 || late.Items[0].ID != earlier.ID || late.Items[1].ID != later.ID {
		t.Fatalf("order: %+v", late.Items)
	}
}

func TestTasksByRelatedObject(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.TaskCreateOptions{
		Title:          "a",
		RelatedObjects: []engine.RelatedObjectSpec{{ObjectType: "deal", ObjectID: 5}},
	})
	env.mustCreate(t, engine.TaskCreateOptions{
		Title:          "b",
		RelatedObjects: []engine.RelatedObjectSpec{{ObjectType: "deal", ObjectID: 6}},
	})

	linked, err := env.Engine.TasksByRelatedObject(env.Ctx, "deal", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(linked) != 1 || linked[0].ID != a.ID {
		t.Fatalf("related query: %+v", linked)
	}

	var ierr engine.InvalidArgumentError
	if _, err := env.Engine.TasksByRelatedObject(env.Ctx, "", 5); !errors.As(err, &ierr) {
		t.Fatalf("blank type: err = %v", err)
	}
}

func TestSubtasks(t *testing.T) {
	env := newTestEnv(t)
	parent := env.mustCreate(t, engine.TaskCreateOptions{Title: "parent"})
	c1 := env.mustCreate(t, engine.TaskCreateOptions{Title: "c1", ParentTaskID: parent.ID})
	c2 := env.mustCreate(t, engine.TaskCreateOptions{Title: "c2", ParentTaskID: parent.ID})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "grand", ParentTaskID: c1.ID})

	kids, err := env.Engine.Subtasks(env.Ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 2 {
		t.Fatalf("children = %d, want 2 (direct only)", len(kids))
	}
	got := map[string]bool{kids[0].ID: true, kids[1].ID: true}
	if !got[c1.ID] || !got[c2.ID] {
		t.Fatalf("children: %+v", kids)
	}

	none, err := env.Engine.Subtasks(env.Ctx, "ghost")
	if err != nil {
		t.Fatalf("unknown parent: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("children of ghost = %d", len(none))
	}
}

func TestSearchTasks(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, engine.TaskCreateOptions{Title: "Quarterly report"})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "Other", Description: "prepare the REPORT deck"})
	env.mustCreate(t, engine.TaskCreateOptions{Title: "Unrelated"})

	page, err := env.Engine.SearchTasks(env.Ctx, "report", domain.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Fatalf("matches = %d, want 2", page.Total)
	}

	windowed, err := env.Engine.SearchTasks(env.Ctx, "report", domain.PageRequest{Page: 1, Size: 1})
	if err != nil {
		t.Fatal(err)
	}
	if windowed.Total != 2 || len(windowed.Items) != 1 {
		t.Fatalf("window: total=%d items=%d", windowed.Total, len(windowed.Items))
	}
}
