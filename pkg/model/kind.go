package model

import "encoding/xml"

// Envelope is the paging metadata Redmine puts on every collection root,
// e.g. <issues total_count="45" offset="0" limit="20" type="array">.
// Offset and Limit are echoed for diagnostics only.
type Envelope struct {
	TotalCount int64 `xml:"total_count,attr"`
	Offset     int64 `xml:"offset,attr"`
	Limit      int   `xml:"limit,attr"`
}

// Container is the decoded shape of one collection response.
type Container[T any] interface {
	Meta() Envelope
	Records() []T
}

// Page is one decoded page: the records in server order plus the
// server-declared size of the whole result set.
type Page[T any] struct {
	Items      []T
	TotalCount int64
	Offset     int64
	Limit      int
}

// PageFrom converts a decoded container into a Page.
func PageFrom[T any](c Container[T]) *Page[T] {
	meta := c.Meta()
	return &Page[T]{
		Items:      c.Records(),
		TotalCount: meta.TotalCount,
		Offset:     meta.Offset,
		Limit:      meta.Limit,
	}
}

// Kind describes one entity kind: its name for diagnostics, the URL
// collection segment, and the container its list responses decode into.
type Kind[T any] struct {
	Name         string
	Collection   string
	NewContainer func() Container[T]
}

// Valid reports whether the descriptor is fully populated.
func (k Kind[T]) Valid() bool {
	return k.Name != "" && k.Collection != "" && k.NewContainer != nil
}

// Descriptors for the paginated collections.
var (
	Projects = Kind[Project]{
		Name:         "project",
		Collection:   "projects",
		NewContainer: func() Container[Project] { return &ProjectsContainer{} },
	}

	Issues = Kind[Issue]{
		Name:         "issue",
		Collection:   "issues",
		NewContainer: func() Container[Issue] { return &IssuesContainer{} },
	}

	Users = Kind[User]{
		Name:         "user",
		Collection:   "users",
		NewContainer: func() Container[User] { return &UsersContainer{} },
	}
)

// ProjectsContainer decodes <projects>.
type ProjectsContainer struct {
	XMLName xml.Name `xml:"projects"`
	Envelope
	Projects []Project `xml:"project"`
}

// Meta returns the paging envelope.
func (c *ProjectsContainer) Meta() Envelope { return c.Envelope }

// Records returns the decoded projects.
func (c *ProjectsContainer) Records() []Project { return c.Projects }

// IssuesContainer decodes <issues>.
type IssuesContainer struct {
	XMLName xml.Name `xml:"issues"`
	Envelope
	Issues []Issue `xml:"issue"`
}

// Meta returns the paging envelope.
func (c *IssuesContainer) Meta() Envelope { return c.Envelope }

// Records returns the decoded issues.
func (c *IssuesContainer) Records() []Issue { return c.Issues }

// UsersContainer decodes <users>.
type UsersContainer struct {
	XMLName xml.Name `xml:"users"`
	Envelope
	Users []User `xml:"user"`
}

// Meta returns the paging envelope.
func (c *UsersContainer) Meta() Envelope { return c.Envelope }

// Records returns the decoded users.
func (c *UsersContainer) Records() []User { return c.Users }
