package app

import (
	"context"
	"strings"

	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
)

// CreateUserInput carries the fields accepted when registering a user.
type CreateUserInput struct {
	UserID   string
	UserName string
}

// CreateUser registers a user with an empty issued-book list.
func (a *App) CreateUser(ctx context.Context, in CreateUserInput) (domain.User, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.UserName = strings.TrimSpace(in.UserName)
	if in.UserID == "" {
		return domain.User{}, invalidArgument("user_id is required")
	}
	if in.UserName == "" {
		return domain.User{}, invalidArgument("user_name is required")
	}
	user := domain.User{
		ID:          util.NewID(),
		UserID:      in.UserID,
		UserName:    in.UserName,
		IssuedBooks: []string{},
	}
	saved, err := a.store.CreateUser(ctx, user)
	if err != nil {
		util.LoggerFromContext(ctx).Error("create user failed", "user_id", user.UserID, "err", err)
		return domain.User{}, persistence("Failed to add user. Try again", err)
	}
	return saved, nil
}

// GetUser resolves id as an internal ID first and then as a user_id.
func (a *App) GetUser(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if util.IsValidID(id) {
		user, ok, err := a.store.GetUser(ctx, strings.ToLower(id))
		if err != nil {
			return domain.User{}, persistence("Failed to retrieve user. Try again", err)
		}
		if ok {
			return user, nil
		}
	}
	user, ok, err := a.store.GetUserByUserID(ctx, id)
	if err != nil {
		return domain.User{}, persistence("Failed to retrieve user. Try again", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}
