package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

// The user and team tables back the identity directories the task engine
// consults. Only lookup-by-id plus minimal seeding is provided here;
// full account management belongs to other systems.

func scanUser(sc rowScanner) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	err := sc.Scan(&u.ID, &u.Name, &email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if email.Valid {
		u.Email = email.String
	}
	return u, nil
}

func scanTeam(sc rowScanner) (domain.Team, error) {
	var t domain.Team
	err := sc.Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM users WHERE id=?`, id))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return queryList(ctx, r.DB, `SELECT id,name,email,created_at FROM users ORDER BY created_at ASC, id ASC`, nil, scanUser)
}

func (r Repo) InsertTeam(ctx context.Context, t domain.Team) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO teams(id,name,created_at) VALUES (?,?,?)`,
		t.ID, t.Name, t.CreatedAt)
	return err
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	return scanTeam(r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM teams WHERE id=?`, id))
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return queryList(ctx, r.DB, `SELECT id,name,created_at FROM teams ORDER BY created_at ASC, id ASC`, nil, scanTeam)
}
