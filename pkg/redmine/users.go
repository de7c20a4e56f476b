package redmine

import (
	"context"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/codec"
	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
)

// CreateUser stores a new user account. Requires admin privileges.
func (c *Connector) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if user == nil {
		return nil, apierr.New(apierr.KindIllegalArgument, "user must not be nil")
	}
	body, err := codec.Encode(user)
	if err != nil {
		return nil, err
	}
	created := &model.User{}
	if err := c.create(ctx, collectionPath(model.Users.Collection), body, created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateUser writes user back to the server.
func (c *Connector) UpdateUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return apierr.New(apierr.KindIllegalArgument, "user must not be nil")
	}
	if err := requireID("user", user.ID); err != nil {
		return err
	}
	body, err := codec.Encode(user)
	if err != nil {
		return err
	}
	return c.update(ctx, objectPath(model.Users.Collection, user.ID), body)
}

// DeleteUser removes a user account.
func (c *Connector) DeleteUser(ctx context.Context, id int64) error {
	if err := requireID("user", id); err != nil {
		return err
	}
	return c.delete(ctx, objectPath(model.Users.Collection, id))
}

// GetUser fetches one user, e.g. GetUser(ctx, 3, model.UserIncludeMemberships).
func (c *Connector) GetUser(ctx context.Context, id int64, includes ...string) (*model.User, error) {
	if err := requireID("user", id); err != nil {
		return nil, err
	}
	user := &model.User{}
	if err := c.get(ctx, objectPath(model.Users.Collection, id, includes...), user); err != nil {
		return nil, err
	}
	return user, nil
}

// Users opens a paginator over user accounts.
func (c *Connector) Users(opts ListOptions) (*pagination.Paginator[model.User], error) {
	return List(c, model.Users, opts)
}
