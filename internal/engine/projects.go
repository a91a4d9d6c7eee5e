package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/policy"
)

var projectStates = map[string]bool{
	"ongoing":    true,
	"deployment": true,
	"completed":  true,
	"paused":     true,
	"cancelled":  true,
}

func (e Engine) CreateProject(ctx context.Context, actor domain.Actor, name, description string) (domain.Project, error) {
	if err := policy.DecideProject(actor, policy.ProjectCreate).Err(string(policy.ProjectCreate)); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Project{}, ValidationError{Msg: "project name required"}
	}
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: description,
		State:       "ongoing",
		CreatedAt:   e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", "project", p.ID, actor.ID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, actor domain.Actor, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.DecideProject(actor, policy.ProjectRead).Err(string(policy.ProjectRead)); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	if err := policy.DecideProject(actor, policy.ProjectRead).Err(string(policy.ProjectRead)); err != nil {
		return nil, err
	}
	return e.Repo.ListProjects(ctx)
}

func (e Engine) UpdateProjectState(ctx context.Context, actor domain.Actor, id, state string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.DecideProject(actor, policy.ProjectUpdateState).Err(string(policy.ProjectUpdateState)); err != nil {
		return domain.Project{}, err
	}
	if !projectStates[state] {
		return domain.Project{}, ValidationError{Msg: fmt.Sprintf("unknown project state %q", state)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProjectState(ctx, tx, id, state); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.state_changed", "project", id, actor.ID, events.EventPayload{"from": p.State, "to": state}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.State = state
	return p, nil
}

// AddParticipant attaches a user to a project. At most one participant may
// hold the project-manager role.
func (e Engine) AddParticipant(ctx context.Context, actor domain.Actor, projectID, userID, roleInProject string) (domain.Participant, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Participant{}, err
	}
	if err := policy.DecideProject(actor, policy.ProjectManageParticipants).Err(string(policy.ProjectManageParticipants)); err != nil {
		return domain.Participant{}, err
	}
	if roleInProject != domain.ProjectManager && roleInProject != domain.ProjectMember {
		return domain.Participant{}, ValidationError{Msg: fmt.Sprintf("unknown project role %q", roleInProject)}
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()
	if roleInProject == domain.ProjectManager {
		n, err := e.Repo.CountProjectManagersTx(ctx, tx, projectID, userID)
		if err != nil {
			return domain.Participant{}, err
		}
		if n > 0 {
			return domain.Participant{}, ConflictError{Msg: "project already has a project-manager"}
		}
	}
	p := domain.Participant{UserID: u.ID, Email: u.Email, RoleInProject: roleInProject}
	if err := e.Repo.UpsertParticipant(ctx, tx, projectID, p); err != nil {
		return domain.Participant{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.participant_added", "project", projectID, actor.ID,
		events.EventPayload{"user_id": u.ID, "role_in_project": roleInProject}); err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (e Engine) RemoveParticipant(ctx context.Context, actor domain.Actor, projectID, userID string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	if err := policy.DecideProject(actor, policy.ProjectManageParticipants).Err(string(policy.ProjectManageParticipants)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveParticipant(ctx, tx, projectID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.participant_removed", "project", projectID, actor.ID,
		events.EventPayload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}
