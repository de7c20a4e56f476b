package model

import (
	"encoding/xml"
	"strings"
)

// Include values accepted by GET /issues/<id>.xml.
const (
	IssueIncludeChildren    = "children"
	IssueIncludeAttachments = "attachments"
	IssueIncludeRelations   = "relations"
	IssueIncludeChangesets  = "changesets"
	IssueIncludeJournals    = "journals"
)

// Filters accepted by GET /issues.xml.
const (
	IssueFilterProjectID  = "project_id"
	IssueFilterTrackerID  = "tracker_id"
	IssueFilterStatusID   = "status_id"
	IssueFilterAssignedTo = "assigned_to_id"
	IssueFilterParentID   = "parent_id"
	IssueFilterSort       = "sort"
)

// Issue is a Redmine issue.
type Issue struct {
	XMLName        xml.Name   `xml:"issue"`
	ID             int64      `xml:"id,omitempty"`
	Project        *Ref       `xml:"project,omitempty"`
	Tracker        *Ref       `xml:"tracker,omitempty"`
	Status         *Ref       `xml:"status,omitempty"`
	Priority       *Ref       `xml:"priority,omitempty"`
	Author         *Ref       `xml:"author,omitempty"`
	AssignedTo     *Ref       `xml:"assigned_to,omitempty"`
	Parent         *Ref       `xml:"parent,omitempty"`
	Subject        string     `xml:"subject,omitempty"`
	Description    string     `xml:"description,omitempty"`
	StartDate      *Date      `xml:"start_date,omitempty"`
	DueDate        *Date      `xml:"due_date,omitempty"`
	DoneRatio      *int       `xml:"done_ratio,omitempty"`
	EstimatedHours *float64   `xml:"estimated_hours,omitempty"`
	SpentHours     *float64   `xml:"spent_hours,omitempty"`
	CreatedOn      *Timestamp `xml:"created_on,omitempty"`
	UpdatedOn      *Timestamp `xml:"updated_on,omitempty"`
}

// GetID returns the issue id.
func (i *Issue) GetID() int64 { return i.ID }

// SetID sets the issue id.
func (i *Issue) SetID(id int64) { i.ID = id }

// Validate reports the fields Redmine needs to accept an issue write.
// Only the project id is checked, not the full project, because issues
// returned by the server carry a project reference without an identifier.
func (i *Issue) Validate() []string {
	var errs []string
	if i.Project == nil {
		errs = append(errs, "Issue's Project is null.")
	} else {
		errs = i.Project.validate("Project", errs)
	}
	if strings.TrimSpace(i.Subject) == "" {
		errs = append(errs, "Issue's Subject is null or empty String")
	}
	if i.Priority == nil {
		errs = append(errs, "Issue's Priority is null.")
	} else {
		errs = i.Priority.validate("Priority's", errs)
	}
	if i.Author != nil {
		errs = i.Author.validate("Author's", errs)
	}
	if i.AssignedTo != nil {
		errs = i.AssignedTo.validate("Assignee's", errs)
	}
	if i.Tracker != nil {
		errs = i.Tracker.validate("Tracker's", errs)
	}
	return errs
}
