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

// CreateUser registers a profile. Admin only; the first admin comes from
// Bootstrap instead.
func (e Engine) CreateUser(ctx context.Context, actor domain.Actor, name, email string, role domain.Role) (domain.User, error) {
	if err := policy.DecideProfile(actor, policy.ProfileSnapshot{}, policy.ProfileCreate).Err(string(policy.ProfileCreate)); err != nil {
		return domain.User{}, err
	}
	return e.insertUser(ctx, actor.ID, name, email, role)
}

// Bootstrap creates the first admin in an empty org. It refuses to run once
// any user exists.
func (e Engine) Bootstrap(ctx context.Context, name, email string) (domain.User, error) {
	existing, err := e.Repo.ListUsers(ctx, "")
	if err != nil {
		return domain.User{}, err
	}
	if len(existing) > 0 {
		return domain.User{}, ConflictError{Msg: "org already has users"}
	}
	return e.insertUser(ctx, "", name, email, domain.RoleAdmin)
}

func (e Engine) insertUser(ctx context.Context, actorID, name, email string, role domain.Role) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return domain.User{}, ValidationError{Msg: "name and email required"}
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, ValidationError{Msg: fmt.Sprintf("invalid email %q", email)}
	}
	if !role.Valid() {
		return domain.User{}, ValidationError{Msg: fmt.Sprintf("unknown role %q", role)}
	}
	now := e.nowRFC3339()
	u := domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actorID == "" {
		actorID = u.ID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.ID, actorID,
		events.EventPayload{"email": u.Email, "role": string(u.Role)}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) GetProfile(ctx context.Context, actor domain.Actor, userID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	snap := policy.ProfileSnapshot{UserID: u.ID}
	if err := policy.DecideProfile(actor, snap, policy.ProfileRead).Err(string(policy.ProfileRead)); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) ListProfiles(ctx context.Context, actor domain.Actor, role string) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if policy.DecideProfile(actor, policy.ProfileSnapshot{UserID: u.ID}, policy.ProfileRead).Allowed {
			out = append(out, u)
		}
	}
	return out, nil
}

type ProfileUpdateOptions struct {
	Name  *string
	Email *string
	Role  *domain.Role
}

// UpdateProfile applies field changes. Touching the role field escalates the
// required decision: admin only, and never on the admin's own profile.
func (e Engine) UpdateProfile(ctx context.Context, actor domain.Actor, userID string, opts ProfileUpdateOptions) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	roleChange := opts.Role != nil && *opts.Role != u.Role
	snap := policy.ProfileSnapshot{UserID: u.ID, RoleChange: roleChange}
	if err := policy.DecideProfile(actor, snap, policy.ProfileUpdate).Err(string(policy.ProfileUpdate)); err != nil {
		return domain.User{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.User{}, ValidationError{Msg: "name required"}
		}
		u.Name = strings.TrimSpace(*opts.Name)
	}
	if opts.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*opts.Email))
		if !strings.Contains(email, "@") {
			return domain.User{}, ValidationError{Msg: fmt.Sprintf("invalid email %q", email)}
		}
		u.Email = email
	}
	if roleChange {
		if !opts.Role.Valid() {
			return domain.User{}, ValidationError{Msg: fmt.Sprintf("unknown role %q", *opts.Role)}
		}
		u.Role = *opts.Role
	}
	u.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	payload := events.EventPayload{"email": u.Email}
	if roleChange {
		payload["role"] = string(u.Role)
	}
	if err := e.Events.Append(ctx, tx, "user.updated", "user", u.ID, actor.ID, payload); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) DeleteProfile(ctx context.Context, actor domain.Actor, userID string) error {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := policy.DecideProfile(actor, policy.ProfileSnapshot{UserID: u.ID}, policy.ProfileDelete).Err(string(policy.ProfileDelete)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUser(ctx, tx, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "user", userID, actor.ID,
		events.EventPayload{"email": u.Email}); err != nil {
		return err
	}
	return tx.Commit()
}

// WhoAmI returns the profile behind the current principal.
func (e Engine) WhoAmI(ctx context.Context, actor domain.Actor) (domain.User, error) {
	return e.Repo.GetUser(ctx, actor.ID)
}

// CreateAPIKey issues a key for a user and returns the plaintext once.
// Users issue keys for themselves; admins for anyone.
func (e Engine) CreateAPIKey(ctx context.Context, actor domain.Actor, userID, name string) (domain.APIKey, string, error) {
	if userID == "" {
		userID = actor.ID
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	snap := policy.ProfileSnapshot{UserID: u.ID}
	if err := policy.DecideProfile(actor, snap, policy.ProfileUpdate).Err(string(policy.ProfileUpdate)); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "user", u.ID, actor.ID,
		events.EventPayload{"name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
