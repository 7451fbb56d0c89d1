package repo

import (
	"context"
	"database/sql"
)

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryList runs query and maps each row through scan.
func queryList[T any](ctx context.Context, q rowQuerier, query string, args []any, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// queryPage runs countQuery for the total, then selectQuery with
// LIMIT/OFFSET appended for the page window.
func queryPage[T any](ctx context.Context, q rowQuerier, selectQuery, countQuery string, args []any, limit, offset int, scan func(rowScanner) (T, error)) ([]T, int, error) {
	var total int
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	items, err := queryList(ctx, q, selectQuery+" LIMIT ? OFFSET ?", pageArgs, scan)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
