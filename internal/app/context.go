package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// ResolveProjectAndConfig picks the active project and ensures a project +
// config exist in DB, seeding defaults if missing. It prefers overrides,
// then single-project DB. If the project does not exist, it is created on
// the fly with the caller as owner.
func ResolveProjectAndConfig(ctx context.Context, projectOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" {
		if p, err := r.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
	}
	seedCfg := config.Default(projectID)

	if _, err := r.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createProject(ctx, r, projectID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertProjectConfig(ctx, projectID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed project config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}

// EnsureUser inserts a placeholder user record if the ID is unknown, so
// local CLI use works without a registration step.
func EnsureUser(ctx context.Context, r repo.Repo, userID string) error {
	if userID == "" {
		return errors.New("user id required")
	}
	_, err := r.GetUser(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return r.InsertUser(ctx, domain.User{
		ID:        userID,
		Name:      userID,
		Email:     userID + "@local",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// createProject inserts a minimal project footprint using the seed config.
func createProject(ctx context.Context, r repo.Repo, projectID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(projectID)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := EnsureUser(ctx, r, actorID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	statuses := seedCfg.Board.Statuses
	if len(statuses) == 0 {
		statuses = domain.DefaultStatuses
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Project{
		ID:        projectID,
		Title:     projectID,
		OwnerID:   actorID,
		Statuses:  statuses,
		CreatedAt: now,
	}
	if err := r.InsertProject(ctx, tx, p); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if err := r.AddMember(ctx, tx, domain.Member{ProjectID: projectID, UserID: actorID, Role: repo.RoleOwner, AddedAt: now}); err != nil {
		return fmt.Errorf("add owner member: %w", err)
	}
	if err := r.UpsertProjectConfigTx(ctx, tx, projectID, seedCfg); err != nil {
		return fmt.Errorf("insert project config: %w", err)
	}
	return tx.Commit()
}
