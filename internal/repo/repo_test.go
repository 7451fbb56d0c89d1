package repo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/migrate"
	"taskdesk/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, string) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	u := domain.User{ID: uuid.New().String(), Name: "seed", CreatedAt: "2026-01-01T00:00:00Z"}
	if err := r.InsertUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return r, u.ID
}

func insertTask(t *testing.T, r repo.Repo, creatorID string, n int) domain.Task {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute).Format(time.RFC3339)
	task := domain.Task{
		ID:          uuid.New().String(),
		Title:       fmt.Sprintf("task %03d", n),
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusNotStarted,
		CreatedByID: creatorID,
		Module:      domain.ModuleGlobal,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := r.InsertTask(ctx, tx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestPageTasksWindow(t *testing.T) {
	r, creator := newTestRepo(t)
	for i := 0; i < 7; i++ {
		insertTask(t, r, creator, i)
	}

	items, total, err := r.PageTasks(context.Background(), repo.TaskFilters{}, domain.PageRequest{Page: 1, Size: 3})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 7 || len(items) != 3 {
		t.Fatalf("total=%d items=%d", total, len(items))
	}
	// newest first, so the second window of size 3 holds tasks 3..1
	if items[0].Title != "task 003" || items[2].Title != "task 001" {
		t.Fatalf("window: %q .. %q", items[0].Title, items[2].Title)
	}

	items, total, err = r.PageTasks(context.Background(), repo.TaskFilters{}, domain.PageRequest{Page: 3, Size: 3})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 7 || len(items) != 0 {
		t.Fatalf("past-end page: total=%d items=%d", total, len(items))
	}
}

func TestDeleteTaskRowNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.DeleteTaskRow(ctx, tx, "missing"); err != repo.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
