package redmine

import (
	"context"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/codec"
	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
)

// CreateProject stores a new project and returns it as saved by the server.
func (c *Connector) CreateProject(ctx context.Context, project *model.Project) (*model.Project, error) {
	if project == nil {
		return nil, apierr.New(apierr.KindIllegalArgument, "project must not be nil")
	}
	body, err := codec.Encode(project)
	if err != nil {
		return nil, err
	}
	created := &model.Project{}
	if err := c.create(ctx, collectionPath(model.Projects.Collection), body, created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateProject writes project back to the server.
func (c *Connector) UpdateProject(ctx context.Context, project *model.Project) error {
	if project == nil {
		return apierr.New(apierr.KindIllegalArgument, "project must not be nil")
	}
	if err := requireID("project", project.ID); err != nil {
		return err
	}
	body, err := codec.Encode(project)
	if err != nil {
		return err
	}
	return c.update(ctx, objectPath(model.Projects.Collection, project.ID), body)
}

// DeleteProject removes a project with all its issues.
func (c *Connector) DeleteProject(ctx context.Context, id int64) error {
	if err := requireID("project", id); err != nil {
		return err
	}
	return c.delete(ctx, objectPath(model.Projects.Collection, id))
}

// GetProject fetches one project, e.g. GetProject(ctx, 1, model.ProjectIncludeTrackers).
func (c *Connector) GetProject(ctx context.Context, id int64, includes ...string) (*model.Project, error) {
	if err := requireID("project", id); err != nil {
		return nil, err
	}
	project := &model.Project{}
	if err := c.get(ctx, objectPath(model.Projects.Collection, id, includes...), project); err != nil {
		return nil, err
	}
	return project, nil
}

// Projects opens a paginator over all visible projects.
func (c *Connector) Projects(opts ListOptions) (*pagination.Paginator[model.Project], error) {
	return List(c, model.Projects, opts)
}
