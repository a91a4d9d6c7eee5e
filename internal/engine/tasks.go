package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/policy"
	"teamline/internal/repo"
)

var taskStatuses = map[string]bool{
	"pending":    true,
	"ongoing":    true,
	"deployment": true,
	"completed":  true,
}

func taskSnapshot(t domain.Task, projectState string) policy.TaskSnapshot {
	ids := make([]string, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		ids = append(ids, a.UserID)
	}
	return policy.TaskSnapshot{ID: t.ID, AssigneeIDs: ids, ProjectState: projectState}
}

type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	AssigneeIDs []string
	Checklist   []string
}

func (e Engine) CreateTask(ctx context.Context, actor domain.Actor, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, ValidationError{Msg: "task title required"}
	}
	project, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	participants := map[string]bool{}
	for _, p := range project.Participants {
		participants[p.UserID] = true
	}
	for _, id := range opts.AssigneeIDs {
		if !participants[id] {
			return domain.Task{}, ValidationError{Msg: fmt.Sprintf("assignee %s is not a project participant", id)}
		}
	}

	now := e.nowRFC3339()
	t := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Status:      "pending",
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(opts.AssigneeIDs) > 0 {
		t.AssignedBy = &actor.ID
		for _, id := range opts.AssigneeIDs {
			t.Assignees = append(t.Assignees, domain.TaskAssignee{UserID: id})
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	for _, item := range opts.Checklist {
		c := domain.ChecklistItem{ID: uuid.NewString(), TaskID: t.ID, Item: item}
		if err := e.Repo.InsertChecklistItem(ctx, tx, c); err != nil {
			return domain.Task{}, err
		}
		t.Checklist = append(t.Checklist, c)
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, actor.ID,
		events.EventPayload{"title": t.Title, "project_id": t.ProjectID, "assignees": opts.AssigneeIDs}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.publish(e.assigneeEmails(ctx, t.Assignees), "New task assigned: "+t.Title,
		fmt.Sprintf("You were assigned to task %q in project %q.", t.Title, project.Name))
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	t, projectState, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := policy.DecideTask(actor, taskSnapshot(t, projectState), policy.TaskRead).Err(string(policy.TaskRead)); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ListTasks fetches broadly and narrows through the same read predicate
// single-task reads use.
func (e Engine) ListTasks(ctx context.Context, actor domain.Actor, f repo.TaskFilters) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	states, err := e.Repo.ProjectStates(ctx)
	if err != nil {
		return nil, err
	}
	return policy.VisibleTasks(actor, tasks, func(t domain.Task) policy.TaskSnapshot {
		return taskSnapshot(t, states[t.ProjectID])
	}), nil
}

// UpdateTaskStatus authorizes against the loaded snapshot and applies the
// change to the same row the snapshot came from, within one transaction.
func (e Engine) UpdateTaskStatus(ctx context.Context, actor domain.Actor, id, status string) (domain.Task, error) {
	t, projectState, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	snap := taskSnapshot(t, projectState)
	if err := policy.DecideTask(actor, snap, policy.TaskUpdateStatus).Err(string(policy.TaskUpdateStatus)); err != nil {
		return domain.Task{}, err
	}
	if !taskStatuses[status] {
		return domain.Task{}, ValidationError{Msg: fmt.Sprintf("unknown task status %q", status)}
	}

	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTaskStatus(ctx, tx, snap.ID, status, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.status_changed", "task", snap.ID, actor.ID,
		events.EventPayload{"from": t.Status, "to": status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	from := t.Status
	t.Status = status
	t.UpdatedAt = now
	e.publish(e.assigneeEmails(ctx, t.Assignees), "Task status updated: "+t.Title,
		fmt.Sprintf("Task %q moved from %s to %s.", t.Title, from, status))
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, actor domain.Actor, id string) error {
	t, projectState, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.DecideTask(actor, taskSnapshot(t, projectState), policy.TaskDelete).Err(string(policy.TaskDelete)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", id, actor.ID,
		events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddChecklistItem and SetChecklistItemDone share the task update rule:
// whoever may move the task's status may maintain its checklist.
func (e Engine) AddChecklistItem(ctx context.Context, actor domain.Actor, taskID, item string) (domain.ChecklistItem, error) {
	t, projectState, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := policy.DecideTask(actor, taskSnapshot(t, projectState), policy.TaskUpdateStatus).Err(string(policy.TaskUpdateStatus)); err != nil {
		return domain.ChecklistItem{}, err
	}
	if strings.TrimSpace(item) == "" {
		return domain.ChecklistItem{}, ValidationError{Msg: "checklist item required"}
	}
	c := domain.ChecklistItem{ID: uuid.NewString(), TaskID: taskID, Item: item}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChecklistItem(ctx, tx, c); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.checklist_added", "task", taskID, actor.ID,
		events.EventPayload{"item": item}); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChecklistItem{}, err
	}
	return c, nil
}

func (e Engine) SetChecklistItemDone(ctx context.Context, actor domain.Actor, taskID, itemID string, done bool) error {
	t, projectState, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	found := false
	for _, c := range t.Checklist {
		if c.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return repo.ErrNotFound
	}
	if err := policy.DecideTask(actor, taskSnapshot(t, projectState), policy.TaskUpdateStatus).Err(string(policy.TaskUpdateStatus)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetChecklistItemDone(ctx, tx, itemID, done); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.checklist_updated", "task", taskID, actor.ID,
		events.EventPayload{"item_id": itemID, "done": done}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) assigneeEmails(ctx context.Context, assignees []domain.TaskAssignee) []string {
	var out []string
	for _, a := range assignees {
		u, err := e.Repo.GetUser(ctx, a.UserID)
		if err != nil {
			continue
		}
		out = append(out, u.Email)
	}
	return out
}
