package redmine

import (
	"context"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/codec"
	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
)

// CreateIssue stores a new issue. The issue must carry a project, a subject
// and a priority; otherwise nothing is sent.
func (c *Connector) CreateIssue(ctx context.Context, issue *model.Issue) (*model.Issue, error) {
	body, err := codec.EncodeIssue(issue)
	if err != nil {
		return nil, err
	}
	created := &model.Issue{}
	if err := c.create(ctx, collectionPath(model.Issues.Collection), body, created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateIssue writes issue back to the server.
func (c *Connector) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	if issue == nil {
		return apierr.New(apierr.KindIllegalArgument, "issue must not be nil")
	}
	if err := requireID("issue", issue.ID); err != nil {
		return err
	}
	body, err := codec.EncodeIssue(issue)
	if err != nil {
		return err
	}
	return c.update(ctx, objectPath(model.Issues.Collection, issue.ID), body)
}

// DeleteIssue removes an issue.
func (c *Connector) DeleteIssue(ctx context.Context, id int64) error {
	if err := requireID("issue", id); err != nil {
		return err
	}
	return c.delete(ctx, objectPath(model.Issues.Collection, id))
}

// GetIssue fetches one issue with the given includes (model.IssueInclude*).
func (c *Connector) GetIssue(ctx context.Context, id int64, includes ...string) (*model.Issue, error) {
	if err := requireID("issue", id); err != nil {
		return nil, err
	}
	issue := &model.Issue{}
	if err := c.get(ctx, objectPath(model.Issues.Collection, id, includes...), issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// Issues opens a paginator over issues. Without a status_id filter Redmine
// returns open issues only.
func (c *Connector) Issues(opts ListOptions) (*pagination.Paginator[model.Issue], error) {
	return List(c, model.Issues, opts)
}
