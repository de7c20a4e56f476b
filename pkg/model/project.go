package model

import (
	"encoding/xml"
	"strings"
)

// Include values accepted by GET /projects/<id>.xml.
const (
	ProjectIncludeTrackers = "trackers"
)

// Project is a Redmine project.
type Project struct {
	XMLName     xml.Name   `xml:"project"`
	ID          int64      `xml:"id,omitempty"`
	Name        string     `xml:"name,omitempty"`
	Identifier  string     `xml:"identifier,omitempty"`
	Description string     `xml:"description,omitempty"`
	HomePage    string     `xml:"homepage,omitempty"`
	CreatedOn   *Timestamp `xml:"created_on,omitempty"`
	UpdatedOn   *Timestamp `xml:"updated_on,omitempty"`
	Trackers    []Ref      `xml:"trackers>tracker,omitempty"`
}

// GetID returns the project id.
func (p *Project) GetID() int64 { return p.ID }

// SetID sets the project id.
func (p *Project) SetID(id int64) { p.ID = id }

// Validate reports missing id, name or identifier.
func (p *Project) Validate() []string {
	var errs []string
	if p.ID == 0 {
		errs = append(errs, "Project Id is null")
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "Project Name is null.")
	}
	if strings.TrimSpace(p.Identifier) == "" {
		errs = append(errs, "Project Identifier is null or empty string.")
	}
	return errs
}
