package app

import (
	"context"
	"errors"
	"fmt"

	"teamline/internal/config"
	"teamline/internal/repo"
)

// ResolveOrgConfig returns the effective org config: the row persisted in
// the database wins, then the workspace teamline.yml, then the built-in
// default. Whatever source is used ends up persisted so later policy
// updates have a row to replace.
func ResolveOrgConfig(ctx context.Context, workspace, orgOverride string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetOrgConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		orgID := orgOverride
		if orgID == "" {
			orgID = "default-org"
		}
		cfg = config.Default(orgID)
	}
	if orgOverride != "" {
		cfg.Org.ID = orgOverride
	}
	if err := r.UpsertOrgConfig(ctx, nil, cfg); err != nil {
		return nil, fmt.Errorf("seed org config: %w", err)
	}
	return cfg, nil
}
