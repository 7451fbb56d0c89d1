package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

const relatedObjectColumns = `id,task_id,object_type,object_id,relationship_type,created_at`

func scanRelatedObject(sc rowScanner) (domain.TaskRelatedObject, error) {
	var ro domain.TaskRelatedObject
	var relType sql.NullString
	err := sc.Scan(&ro.ID, &ro.TaskID, &ro.ObjectType, &ro.ObjectID, &relType, &ro.CreatedAt)
	if err == sql.ErrNoRows {
		return ro, ErrNotFound
	}
	if err != nil {
		return ro, err
	}
	if relType.Valid {
		ro.RelationshipType = &relType.String
	}
	return ro, nil
}

func (r Repo) InsertRelatedObject(ctx context.Context, tx *sql.Tx, ro domain.TaskRelatedObject) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_related_objects(`+relatedObjectColumns+`) VALUES (?,?,?,?,?,?)`,
		ro.ID, ro.TaskID, ro.ObjectType, ro.ObjectID, nullableStringPtr(ro.RelationshipType), ro.CreatedAt)
	return err
}

func (r Repo) GetRelatedObject(ctx context.Context, id string) (domain.TaskRelatedObject, error) {
	return scanRelatedObject(r.DB.QueryRowContext(ctx,
		`SELECT `+relatedObjectColumns+` FROM task_related_objects WHERE id=?`, id))
}

func (r Repo) DeleteRelatedObject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_related_objects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRelatedObjectsByTask removes every link a task owns. Used by the
// cascade, so a zero row count is not an error.
func (r Repo) DeleteRelatedObjectsByTask(ctx context.Context, tx *sql.Tx, taskID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM task_related_objects WHERE task_id=?`, taskID)
	return err
}

func (r Repo) ListRelatedObjects(ctx context.Context, taskID string) ([]domain.TaskRelatedObject, error) {
	return queryList(ctx, r.DB,
		`SELECT `+relatedObjectColumns+` FROM task_related_objects WHERE task_id=? ORDER BY created_at ASC, id ASC`,
		[]any{taskID}, scanRelatedObject)
}
