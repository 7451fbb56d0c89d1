package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	UserID string
	TeamID string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	u, err := eng.CreateUser(ctx, "Dana", "dana@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	tm, err := eng.CreateTeam(ctx, "Sales")
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, UserID: u.ID, TeamID: tm.ID}
}

func (env testEnv) mustCreate(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, opts, env.UserID)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{Title: "Call the customer"})
	if task.Status != domain.StatusNotStarted {
		t.Fatalf("status = %q, want not_started", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q, want medium", task.Priority)
	}
	if task.Module != domain.ModuleGlobal {
		t.Fatalf("module = %q, want global", task.Module)
	}
	if task.CompletionPercentage != 0 {
		t.Fatalf("completion = %d, want 0", task.CompletionPercentage)
	}
	if task.CreatedByID != env.UserID {
		t.Fatalf("created_by = %q, want %q", task.CreatedByID, env.UserID)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts engine.TaskCreateOptions
	}{
		{"empty title", engine.TaskCreateOptions{Title: "   "}},
		{"long title", engine.TaskCreateOptions{Title: strings.Repeat("x", 256)}},
		{"long description", engine.TaskCreateOptions{Title: "ok", Description: strings.Repeat("x", 1001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateTask(env.Ctx, tc.opts, env.UserID)
			var verr engine.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "ok", DueDate: "next tuesday"}, env.UserID)
	var ierr engine.InvalidArgumentError
	if !errors.As(err, &ierr) {
		t.Fatalf("bad due date: err = %v, want InvalidArgumentError", err)
	}
}

func TestCreateTaskUnknownReferences(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		kind string
		run  func() error
	}{
		{"creator", "user", func() error {
			_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x"}, "ghost")
			return err
		}},
		{"assignee", "user", func() error {
			_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", AssignedToID: "ghost"}, env.UserID)
			return err
		}},
		{"team", "team", func() error {
			_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", TeamID: "ghost"}, env.UserID)
			return err
		}},
		{"parent", "task", func() error {
			_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ParentTaskID: "ghost"}, env.UserID)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			var nf engine.NotFoundError
			if !errors.As(err, &nf) || nf.Kind != tc.kind {
				t.Fatalf("err = %v, want NotFoundError for %s", err, tc.kind)
			}
		})
	}
}

func TestCreateTaskWithRelatedObjects(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{
		Title: "Follow up on invoice",
		RelatedObjects: []engine.RelatedObjectSpec{
			{ObjectType: "invoice", ObjectID: 42, RelationshipType: "follow_up"},
			{ObjectType: "contact", ObjectID: 7},
		},
	})
	if len(task.RelatedObjects) != 2 {
		t.Fatalf("related objects = %d, want 2", len(task.RelatedObjects))
	}
	for _, ro := range task.RelatedObjects {
		if ro.TaskID != task.ID {
			t.Fatalf("related object owner = %q, want %q", ro.TaskID, task.ID)
		}
	}
}

func TestUpdateTaskFullReplace(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{
		Title:        "Initial",
		AssignedToID: env.UserID,
		TeamID:       env.TeamID,
	})

	due := "2026-04-01T00:00:00Z"
	updated, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateParams{
		Title:                "Renamed",
		Description:          "now with details",
		DueDate:              &due,
		Priority:             domain.PriorityHigh,
		Status:               domain.StatusInProgress,
		CompletionPercentage: 40,
		Module:               domain.ModuleAccounting,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" || updated.Priority != domain.PriorityHigh {
		t.Fatalf("update not applied: %+v", updated)
	}
	// assignee and team were omitted, so the update clears them
	if updated.AssignedToID != nil || updated.TeamID != nil {
		t.Fatalf("omitted references not cleared: assignee=%v team=%v", updated.AssignedToID, updated.TeamID)
	}
	if updated.CreatedByID != env.UserID {
		t.Fatalf("creator changed to %q", updated.CreatedByID)
	}
}

func TestUpdateTaskKeepsParent(t *testing.T) {
	env := newTestEnv(t)
	parent := env.mustCreate(t, engine.TaskCreateOptions{Title: "Parent"})
	child := env.mustCreate(t, engine.TaskCreateOptions{Title: "Child", ParentTaskID: parent.ID})

	updated, err := env.Engine.UpdateTask(env.Ctx, child.ID, engine.TaskUpdateParams{
		Title:    "Child v2",
		Priority: domain.PriorityLow,
		Status:   domain.StatusNotStarted,
		Module:   domain.ModuleGlobal,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ParentTaskID == nil || *updated.ParentTaskID != parent.ID {
		t.Fatalf("parent lost: %v", updated.ParentTaskID)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	env := newTestEnv(t)
	root := env.mustCreate(t, engine.TaskCreateOptions{Title: "Root"})
	child := env.mustCreate(t, engine.TaskCreateOptions{Title: "Child", ParentTaskID: root.ID})
	grandchild := env.mustCreate(t, engine.TaskCreateOptions{
		Title:          "Grandchild",
		ParentTaskID:   child.ID,
		RelatedObjects: []engine.RelatedObjectSpec{{ObjectType: "deal", ObjectID: 9}},
	})
	sibling := env.mustCreate(t, engine.TaskCreateOptions{Title: "Sibling"})

	if err := env.Engine.DeleteTask(env.Ctx, root.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, id := range []string{root.ID, child.ID, grandchild.ID} {
		_, err := env.Engine.GetTask(env.Ctx, id)
		var nf engine.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("task %s survived cascade: %v", id, err)
		}
	}
	if _, err := env.Engine.GetTask(env.Ctx, sibling.ID); err != nil {
		t.Fatalf("sibling deleted: %v", err)
	}
	linked, err := env.Engine.TasksByRelatedObject(env.Ctx, "deal", 9)
	if err != nil {
		t.Fatalf("query related: %v", err)
	}
	if len(linked) != 0 {
		t.Fatalf("related objects survived cascade: %d", len(linked))
	}
}

func TestHierarchyDepthBound(t *testing.T) {
	env := newTestEnv(t)
	root := env.mustCreate(t, engine.TaskCreateOptions{Title: "depth 0"})
	parent := root
	deepest := root
	var depthErr error
	for i := 1; i <= 80; i++ {
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			Title:        fmt.Sprintf("depth %d", i),
			ParentTaskID: parent.ID,
		}, env.UserID)
		if err != nil {
			depthErr = err
			break
		}
		deepest = task
		parent = task
	}
	if depthErr == nil {
		t.Fatal("nesting 80 levels deep never hit the depth bound")
	}
	var ierr engine.InvalidArgumentError
	if !errors.As(depthErr, &ierr) {
		t.Fatalf("err = %v, want InvalidArgumentError", depthErr)
	}

	// The chain that did fit under the bound still cascades in one delete.
	if err := env.Engine.DeleteTask(env.Ctx, root.ID); err != nil {
		t.Fatalf("delete chain: %v", err)
	}
	_, err := env.Engine.GetTask(env.Ctx, deepest.ID)
	var nf engine.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("deepest task survived cascade: %v", err)
	}
}

func TestDeleteUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	err := env.Engine.DeleteTask(env.Ctx, "ghost")
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "task" {
		t.Fatalf("err = %v, want task NotFoundError", err)
	}
}

func TestAssignTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{Title: "Unowned"})

	task, err := env.Engine.AssignTaskToUser(env.Ctx, task.ID, env.UserID)
	if err != nil {
		t.Fatalf("assign user: %v", err)
	}
	if task.AssignedToID == nil || *task.AssignedToID != env.UserID {
		t.Fatalf("assignee = %v, want %q", task.AssignedToID, env.UserID)
	}

	task, err = env.Engine.AssignTaskToTeam(env.Ctx, task.ID, env.TeamID)
	if err != nil {
		t.Fatalf("assign team: %v", err)
	}
	if task.TeamID == nil || *task.TeamID != env.TeamID {
		t.Fatalf("team = %v, want %q", task.TeamID, env.TeamID)
	}

	_, err = env.Engine.AssignTaskToUser(env.Ctx, task.ID, "ghost")
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "user" {
		t.Fatalf("err = %v, want user NotFoundError", err)
	}
}

func TestStatusDrivesCompletion(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{Title: "Work"})

	task, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletionPercentage != 100 {
		t.Fatalf("completion = %d, want 100", task.CompletionPercentage)
	}
	if task.CompletionDate == nil {
		t.Fatal("completion date not set")
	}

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusNotStarted)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if task.CompletionPercentage != 0 {
		t.Fatalf("completion = %d, want 0", task.CompletionPercentage)
	}

	// in_progress leaves the percentage alone
	if _, err := env.Engine.UpdateTaskCompletion(env.Ctx, task.ID, 30); err != nil {
		t.Fatalf("set completion: %v", err)
	}
	task, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusBlocked)
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if task.CompletionPercentage != 30 {
		t.Fatalf("completion = %d, want 30", task.CompletionPercentage)
	}
}

func TestCompletionDrivesStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{Title: "Work"})

	steps := []struct {
		pct    int
		status domain.TaskStatus
	}{
		{50, domain.StatusInProgress},
		{100, domain.StatusCompleted},
		{0, domain.StatusNotStarted},
	}
	for _, s := range steps {
		got, err := env.Engine.UpdateTaskCompletion(env.Ctx, task.ID, s.pct)
		if err != nil {
			t.Fatalf("completion %d: %v", s.pct, err)
		}
		if got.Status != s.status {
			t.Fatalf("completion %d: status = %q, want %q", s.pct, got.Status, s.status)
		}
	}

	for _, pct := range []int{-1, 101} {
		_, err := env.Engine.UpdateTaskCompletion(env.Ctx, task.ID, pct)
		var ierr engine.InvalidArgumentError
		if !errors.As(err, &ierr) {
			t.Fatalf("completion %d: err = %v, want InvalidArgumentError", pct, err)
		}
	}
}

func TestMutationOrderingsConverge(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.TaskCreateOptions{Title: "A"})
	b := env.mustCreate(t, engine.TaskCreateOptions{Title: "B"})

	// status first, then completion
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, a.ID, domain.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	ta, err := env.Engine.UpdateTaskCompletion(env.Ctx, a.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	// completion first, then status
	if _, err := env.Engine.UpdateTaskCompletion(env.Ctx, b.ID, 100); err != nil {
		t.Fatal(err)
	}
	tb, err := env.Engine.UpdateTaskStatus(env.Ctx, b.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if ta.Status != tb.Status || ta.CompletionPercentage != tb.CompletionPercentage {
		t.Fatalf("orderings diverge: %q/%d vs %q/%d",
			ta.Status, ta.CompletionPercentage, tb.Status, tb.CompletionPercentage)
	}
	if ta.CompletionDate == nil || tb.CompletionDate == nil {
		t.Fatal("completion date missing")
	}
}

func TestRelatedObjectOwnership(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.TaskCreateOptions{Title: "A"})
	b := env.mustCreate(t, engine.TaskCreateOptions{Title: "B"})

	a, err := env.Engine.AddRelatedObjectToTask(env.Ctx, a.ID, "contact", 11, "call")
	if err != nil {
		t.Fatalf("add link: %v", err)
	}
	if len(a.RelatedObjects) != 1 {
		t.Fatalf("links = %d, want 1", len(a.RelatedObjects))
	}
	linkID := a.RelatedObjects[0].ID

	// removing through the wrong task is rejected
	_, err = env.Engine.RemoveRelatedObjectFromTask(env.Ctx, b.ID, linkID)
	var ierr engine.InvalidArgumentError
	if !errors.As(err, &ierr) {
		t.Fatalf("cross-task removal: err = %v, want InvalidArgumentError", err)
	}

	a, err = env.Engine.RemoveRelatedObjectFromTask(env.Ctx, a.ID, linkID)
	if err != nil {
		t.Fatalf("remove link: %v", err)
	}
	if len(a.RelatedObjects) != 0 {
		t.Fatalf("links = %d, want 0", len(a.RelatedObjects))
	}

	_, err = env.Engine.RemoveRelatedObjectFromTask(env.Ctx, a.ID, linkID)
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "related object" {
		t.Fatalf("double remove: err = %v, want related object NotFoundError", err)
	}

	_, err = env.Engine.AddRelatedObjectToTask(env.Ctx, a.ID, "  ", 1, "")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("blank object type: err = %v, want ValidationError", err)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, engine.TaskCreateOptions{Title: "Audited"})
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.TailEvents(env.Ctx, 10, task.ID)
	if err != nil {
		t.Fatalf("tail events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("events = %d, want 3", len(evts))
	}
	// newest first
	want := []string{"task.deleted", "task.status", "task.created"}
	for i, e := range evts {
		if e.Type != want[i] {
			t.Fatalf("event[%d] = %q, want %q", i, e.Type, want[i])
		}
	}
}
