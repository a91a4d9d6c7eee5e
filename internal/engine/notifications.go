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

func notificationSnapshot(n domain.Notification) policy.NotificationSnapshot {
	emails := make([]string, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		emails = append(emails, r.Email)
	}
	return policy.NotificationSnapshot{ID: n.ID, Audience: n.Audience, RecipientEmails: emails}
}

type NotificationSendOptions struct {
	Audience domain.Audience
	Subject  string
	Message  string
	// ToEmails addresses a private notification. Ignored for public ones,
	// whose recipient set is every admin and manager.
	ToEmails []string
}

// SendNotification persists the notification with its resolved recipient set
// and, after commit, hands the message to the dispatcher. Public audiences
// are narrowed to admins and managers by policy; member addressees are
// dropped, not rejected.
func (e Engine) SendNotification(ctx context.Context, actor domain.Actor, opts NotificationSendOptions) (domain.Notification, error) {
	if err := policy.DecideNotification(actor, policy.NotificationSnapshot{}, policy.NotificationSend).Err(string(policy.NotificationSend)); err != nil {
		return domain.Notification{}, err
	}
	if opts.Audience != domain.AudiencePublic && opts.Audience != domain.AudiencePrivate {
		return domain.Notification{}, ValidationError{Msg: fmt.Sprintf("unknown audience %q", opts.Audience)}
	}
	if strings.TrimSpace(opts.Subject) == "" {
		return domain.Notification{}, ValidationError{Msg: "subject required"}
	}

	candidates, err := e.recipientCandidates(ctx, opts)
	if err != nil {
		return domain.Notification{}, err
	}
	resolved := policy.ResolveRecipients(opts.Audience, candidates)

	n := domain.Notification{
		ID:        uuid.NewString(),
		FromEmail: actor.Email,
		Audience:  opts.Audience,
		Subject:   strings.TrimSpace(opts.Subject),
		Message:   opts.Message,
		CreatedAt: e.nowRFC3339(),
	}
	for _, r := range resolved {
		n.Recipients = append(n.Recipients, domain.Recipient{Email: r.Email, State: "unread"})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Notification{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "notification.sent", "notification", n.ID, actor.ID,
		events.EventPayload{"audience": string(n.Audience), "subject": n.Subject, "recipients": len(n.Recipients)}); err != nil {
		return domain.Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Notification{}, err
	}
	emails := make([]string, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		emails = append(emails, r.Email)
	}
	e.publish(emails, n.Subject, n.Message)
	return n, nil
}

func (e Engine) recipientCandidates(ctx context.Context, opts NotificationSendOptions) ([]domain.Actor, error) {
	if opts.Audience == domain.AudiencePublic {
		users, err := e.Repo.ListUsers(ctx, "")
		if err != nil {
			return nil, err
		}
		out := make([]domain.Actor, 0, len(users))
		for _, u := range users {
			out = append(out, u.Actor())
		}
		return out, nil
	}
	var out []domain.Actor
	for _, email := range opts.ToEmails {
		u, err := e.Repo.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, ValidationError{Msg: fmt.Sprintf("unknown recipient %q", email)}
		}
		out = append(out, u.Actor())
	}
	if len(out) == 0 {
		return nil, ValidationError{Msg: "private notification needs at least one recipient"}
	}
	return out, nil
}

func (e Engine) ListNotifications(ctx context.Context, actor domain.Actor) ([]domain.Notification, error) {
	all, err := e.Repo.ListNotifications(ctx)
	if err != nil {
		return nil, err
	}
	return policy.VisibleNotifications(actor, all, notificationSnapshot), nil
}

func (e Engine) GetNotification(ctx context.Context, actor domain.Actor, id string) (domain.Notification, error) {
	n, err := e.Repo.GetNotification(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if err := policy.DecideNotification(actor, notificationSnapshot(n), policy.NotificationRead).Err(string(policy.NotificationRead)); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// MarkNotificationRead flips the actor's own recipient row to read.
func (e Engine) MarkNotificationRead(ctx context.Context, actor domain.Actor, id string) error {
	n, err := e.Repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.DecideNotification(actor, notificationSnapshot(n), policy.NotificationRead).Err(string(policy.NotificationRead)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkNotificationRead(ctx, tx, id, actor.Email); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "notification.read", "notification", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteNotification(ctx context.Context, actor domain.Actor, id string) error {
	n, err := e.Repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.DecideNotification(actor, notificationSnapshot(n), policy.NotificationDelete).Err(string(policy.NotificationDelete)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteNotification(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "notification.deleted", "notification", id, actor.ID,
		events.EventPayload{"subject": n.Subject}); err != nil {
		return err
	}
	return tx.Commit()
}
