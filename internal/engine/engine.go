// Package engine orchestrates every operation the same way: load the
// resource snapshot, authorize the actor against that exact snapshot, mutate
// inside one transaction using the same snapshot, append an audit event, and
// only after commit publish a best-effort notification. Authorization always
// happens after a successful load, so a missing resource surfaces as
// repo.ErrNotFound before any policy decision.
package engine

import (
	"context"
	"database/sql"
	"time"

	"teamline/internal/config"
	"teamline/internal/events"
	"teamline/internal/notify"
	"teamline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify *notify.Dispatcher
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError marks rejected input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// ConflictError marks a mutation that contradicts current state, like
// re-deciding an already decided leave request.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

func (e Engine) publish(to []string, subject, body string) {
	if e.Notify == nil {
		return
	}
	e.Notify.Publish(notify.Message{To: to, Subject: subject, Body: body})
}

// elevatedEmails returns the emails of every admin and manager, used for
// routing notifications about requests that need a decision.
func (e Engine) elevatedEmails(ctx context.Context) []string {
	var out []string
	for _, role := range []string{"admin", "manager"} {
		users, err := e.Repo.ListUsers(ctx, role)
		if err != nil {
			return nil
		}
		for _, u := range users {
			out = append(out, u.Email)
		}
	}
	return out
}
