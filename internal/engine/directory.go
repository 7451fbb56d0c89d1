package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/domain"
)

// CreateUser registers an identity that tasks can reference as creator or
// assignee.
func (e Engine) CreateUser(ctx context.Context, name, email string) (domain.User, error) {
	if strings.TrimSpace(name) == "" {
		return domain.User{}, ValidationError{Field: "name", Reason: "is required"}
	}
	u := domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

func (e Engine) CreateTeam(ctx context.Context, name string) (domain.Team, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Team{}, ValidationError{Field: "name", Reason: "is required"}
	}
	t := domain.Team{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertTeam(ctx, t); err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

func (e Engine) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return e.Repo.ListTeams(ctx)
}

// TailEvents returns the most recent audit entries, optionally scoped to
// one entity.
func (e Engine) TailEvents(ctx context.Context, limit int, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, entityID)
}
