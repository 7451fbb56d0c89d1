package events_test

import (
	"context"
	"testing"
	"time"

	"taskdesk/internal/db"
	"taskdesk/internal/events"
	"taskdesk/internal/migrate"
)

func TestAppendStampsWallClockByDefault(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	w := events.Writer{}
	before := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := w.Append(ctx, tx, "task.created", "task", "", "", nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	rows, err := conn.Query(`SELECT ts, payload_json FROM events ORDER BY id`)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var ts, payload string
		if err := rows.Scan(&ts, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		stamped, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			t.Fatalf("ts %q not RFC3339: %v", ts, err)
		}
		if stamped.Before(before) {
			t.Fatalf("ts %s predates the test start %s", stamped, before)
		}
		if payload != "{}" {
			t.Fatalf("nil payload stored as %q, want {}", payload)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("event rows = %d, want 2", count)
	}
}
