package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskdesk/internal/domain"
)

func scanEvent(sc rowScanner) (domain.Event, error) {
	var e domain.Event
	var entityID, actorID sql.NullString
	err := sc.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &actorID, &e.Payload)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	if actorID.Valid {
		e.ActorID = actorID.String
	}
	return e, nil
}

// LatestEvents returns the newest audit entries, optionally scoped to one
// entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	args = append(args, limit)
	return queryList(ctx, r.DB,
		`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE `+
			strings.Join(clauses, " AND ")+` ORDER BY id DESC LIMIT ?`,
		args, scanEvent)
}
