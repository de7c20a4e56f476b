package model

import (
	"encoding/xml"
	"strings"
)

// Include values accepted by GET /users/<id>.xml.
const (
	UserIncludeMemberships = "memberships"
	UserIncludeGroups      = "groups"
)

// Filters accepted by GET /users.xml.
const (
	UserFilterStatus  = "status"
	UserFilterName    = "name"
	UserFilterGroupID = "group_id"
)

// User is a Redmine user account.
type User struct {
	XMLName     xml.Name     `xml:"user"`
	ID          int64        `xml:"id,omitempty"`
	Login       string       `xml:"login,omitempty"`
	Password    string       `xml:"password,omitempty"`
	FirstName   string       `xml:"firstname,omitempty"`
	LastName    string       `xml:"lastname,omitempty"`
	Email       string       `xml:"mail,omitempty"`
	AuthSource  int64        `xml:"auth_source_id,omitempty"`
	CreatedOn   *Timestamp   `xml:"created_on,omitempty"`
	LastLoginOn *Timestamp   `xml:"last_login_on,omitempty"`
	Memberships []Membership `xml:"memberships>membership,omitempty"`
	Groups      []Ref        `xml:"groups>group,omitempty"`
}

// Membership is a user's role assignment within one project.
type Membership struct {
	Project *Ref  `xml:"project,omitempty"`
	Roles   []Ref `xml:"roles>role,omitempty"`
}

// GetID returns the user id.
func (u *User) GetID() int64 { return u.ID }

// SetID sets the user id.
func (u *User) SetID(id int64) { u.ID = id }

// FullName joins first and last name, falling back to the login.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Login
	}
	return name
}

// Validate reports a missing id or first name, and defects in memberships.
func (u *User) Validate() []string {
	var errs []string
	if u.ID == 0 {
		errs = append(errs, "User's Id is null")
	}
	if strings.TrimSpace(u.FirstName) == "" {
		errs = append(errs, "First name is not set")
	}
	for _, m := range u.Memberships {
		errs = append(errs, m.Validate()...)
	}
	return errs
}

// Validate reports a missing project or roles.
func (m Membership) Validate() []string {
	var errs []string
	if m.Project == nil {
		errs = append(errs, "Project Id is null")
	} else {
		errs = m.Project.validate("Project", errs)
	}
	if len(m.Roles) == 0 {
		errs = append(errs, "Role is null for membership")
	}
	for i := range m.Roles {
		errs = m.Roles[i].validate("Role's", errs)
	}
	return errs
}

// Group is a Redmine user group.
type Group struct {
	XMLName xml.Name `xml:"group"`
	ID      int64    `xml:"id,omitempty"`
	Name    string   `xml:"name,omitempty"`
}

// GetID returns the group id.
func (g *Group) GetID() int64 { return g.ID }

// SetID sets the group id.
func (g *Group) SetID(id int64) { g.ID = id }

// Validate reports a missing id or name.
func (g *Group) Validate() []string {
	var errs []string
	if g.ID == 0 {
		errs = append(errs, "Id is null")
	}
	if strings.TrimSpace(g.Name) == "" {
		errs = append(errs, "Name is not set")
	}
	return errs
}
