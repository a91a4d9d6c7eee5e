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

var (
	ticketPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}
	ticketStatuses   = map[string]bool{"open": true, "pending": true, "completed": true}
)

func ticketSnapshot(k domain.Ticket, task domain.Task) policy.TicketSnapshot {
	ids := make([]string, 0, len(task.Assignees))
	for _, a := range task.Assignees {
		ids = append(ids, a.UserID)
	}
	snap := policy.TicketSnapshot{ID: k.ID, TaskID: k.TaskID, TaskAssigneeIDs: ids}
	if k.AssignedTo != nil {
		snap.AssignedTo = *k.AssignedTo
	}
	return snap
}

type TicketCreateOptions struct {
	TaskID      string
	IssueTitle  string
	Description string
	AssignedTo  string
	Priority    string
	Tag         string
}

// AddTicket lets anyone who can read the parent task raise an issue on it.
func (e Engine) AddTicket(ctx context.Context, actor domain.Actor, opts TicketCreateOptions) (domain.Ticket, error) {
	task, projectState, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := policy.DecideTask(actor, taskSnapshot(task, projectState), policy.TaskRead).Err(string(policy.TaskRead)); err != nil {
		return domain.Ticket{}, err
	}
	if strings.TrimSpace(opts.IssueTitle) == "" {
		return domain.Ticket{}, ValidationError{Msg: "issue title required"}
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if !ticketPriorities[opts.Priority] {
		return domain.Ticket{}, ValidationError{Msg: fmt.Sprintf("unknown ticket priority %q", opts.Priority)}
	}
	if opts.AssignedTo != "" {
		if _, err := e.Repo.GetUser(ctx, opts.AssignedTo); err != nil {
			return domain.Ticket{}, err
		}
	}

	now := e.nowRFC3339()
	k := domain.Ticket{
		ID:          uuid.NewString(),
		TaskID:      opts.TaskID,
		IssueTitle:  strings.TrimSpace(opts.IssueTitle),
		Description: opts.Description,
		Priority:    opts.Priority,
		Status:      "open",
		Tag:         opts.Tag,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.AssignedTo != "" {
		k.AssignedTo = &opts.AssignedTo
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTicket(ctx, tx, k); err != nil {
		return domain.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "ticket.created", "ticket", k.ID, actor.ID,
		events.EventPayload{"task_id": k.TaskID, "issue_title": k.IssueTitle, "priority": k.Priority}); err != nil {
		return domain.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	if k.AssignedTo != nil {
		if u, err := e.Repo.GetUser(ctx, *k.AssignedTo); err == nil {
			e.publish([]string{u.Email}, "Ticket assigned: "+k.IssueTitle,
				fmt.Sprintf("Ticket %q (%s) was assigned to you.", k.IssueTitle, k.Priority))
		}
	}
	return k, nil
}

func (e Engine) GetTicket(ctx context.Context, actor domain.Actor, id string) (domain.Ticket, error) {
	k, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	task, _, err := e.Repo.GetTask(ctx, k.TaskID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := policy.DecideTicket(actor, ticketSnapshot(k, task), policy.TicketRead).Err(string(policy.TicketRead)); err != nil {
		return domain.Ticket{}, err
	}
	return k, nil
}

func (e Engine) ListTickets(ctx context.Context, actor domain.Actor, taskID string) ([]domain.Ticket, error) {
	task, _, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	tickets, err := e.Repo.ListTickets(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return policy.VisibleTickets(actor, tickets, func(k domain.Ticket) policy.TicketSnapshot {
		return ticketSnapshot(k, task)
	}), nil
}

type TicketUpdateOptions struct {
	IssueTitle  *string
	Description *string
	AssignedTo  *string
	Priority    *string
	Status      *string
	Tag         *string
}

func (e Engine) UpdateTicket(ctx context.Context, actor domain.Actor, id string, opts TicketUpdateOptions) (domain.Ticket, error) {
	k, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	task, _, err := e.Repo.GetTask(ctx, k.TaskID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := policy.DecideTicket(actor, ticketSnapshot(k, task), policy.TicketUpdate).Err(string(policy.TicketUpdate)); err != nil {
		return domain.Ticket{}, err
	}
	if opts.IssueTitle != nil {
		if strings.TrimSpace(*opts.IssueTitle) == "" {
			return domain.Ticket{}, ValidationError{Msg: "issue title required"}
		}
		k.IssueTitle = strings.TrimSpace(*opts.IssueTitle)
	}
	if opts.Description != nil {
		k.Description = *opts.Description
	}
	if opts.AssignedTo != nil {
		if *opts.AssignedTo == "" {
			k.AssignedTo = nil
		} else {
			if _, err := e.Repo.GetUser(ctx, *opts.AssignedTo); err != nil {
				return domain.Ticket{}, err
			}
			k.AssignedTo = opts.AssignedTo
		}
	}
	if opts.Priority != nil {
		if !ticketPriorities[*opts.Priority] {
			return domain.Ticket{}, ValidationError{Msg: fmt.Sprintf("unknown ticket priority %q", *opts.Priority)}
		}
		k.Priority = *opts.Priority
	}
	if opts.Status != nil {
		if !ticketStatuses[*opts.Status] {
			return domain.Ticket{}, ValidationError{Msg: fmt.Sprintf("unknown ticket status %q", *opts.Status)}
		}
		k.Status = *opts.Status
	}
	if opts.Tag != nil {
		k.Tag = *opts.Tag
	}
	k.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTicket(ctx, tx, k); err != nil {
		return domain.Ticket{}, err
	}
	if err := e.Events.Append(ctx, tx, "ticket.updated", "ticket", k.ID, actor.ID,
		events.EventPayload{"status": k.Status, "priority": k.Priority}); err != nil {
		return domain.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	if k.AssignedTo != nil {
		if u, err := e.Repo.GetUser(ctx, *k.AssignedTo); err == nil {
			e.publish([]string{u.Email}, "Ticket updated: "+k.IssueTitle,
				fmt.Sprintf("Ticket %q is now %s (%s).", k.IssueTitle, k.Status, k.Priority))
		}
	}
	return k, nil
}

func (e Engine) DeleteTicket(ctx context.Context, actor domain.Actor, id string) error {
	k, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	task, _, err := e.Repo.GetTask(ctx, k.TaskID)
	if err != nil {
		return err
	}
	if err := policy.DecideTicket(actor, ticketSnapshot(k, task), policy.TicketDelete).Err(string(policy.TicketDelete)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTicket(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "ticket.deleted", "ticket", id, actor.ID,
		events.EventPayload{"issue_title": k.IssueTitle}); err != nil {
		return err
	}
	return tx.Commit()
}
