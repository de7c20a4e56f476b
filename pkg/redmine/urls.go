package redmine

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
)

// ListOptions selects a window of a collection.
type ListOptions struct {
	// StartIndex is the offset of the first record.
	StartIndex int64

	// PageSize is the number of records per request. Zero uses the
	// connector default.
	PageSize int

	// Includes lists associations to embed, e.g. "journals".
	Includes []string

	// Filters are passed through as query parameters, e.g.
	// {"project_id": "1", "status_id": "open"}.
	Filters map[string]string
}

func collectionPath(collection string) string {
	return "/" + collection + ".xml"
}

func objectPath(collection string, id int64, includes ...string) string {
	path := "/" + collection + "/" + strconv.FormatInt(id, 10) + ".xml"
	if len(includes) > 0 {
		path += "?include=" + strings.Join(includes, ",")
	}
	return path
}

func requireID(entity string, id int64) error {
	if id <= 0 {
		return apierr.Newf(apierr.KindIllegalArgument, "%s id must be positive (got %d)", entity, id)
	}
	return nil
}

// Fetcher returns the page fetcher for kind restricted by opts.
func Fetcher[T any](c *Connector, kind model.Kind[T], opts ListOptions) (*pagination.Fetcher[T], error) {
	params := url.Values{}
	for name, value := range opts.Filters {
		params.Set(name, value)
	}
	return pagination.NewFetcher(c.gw, kind, pagination.Query{
		Path:     collectionPath(kind.Collection),
		Includes: opts.Includes,
		Params:   params,
	})
}

// List opens a paginator over kind. Page sizes above the server maximum are
// rejected.
func List[T any](c *Connector, kind model.Kind[T], opts ListOptions) (*pagination.Paginator[T], error) {
	size, err := c.resolvePageSize(opts.PageSize)
	if err != nil {
		return nil, err
	}
	fetcher, err := Fetcher(c, kind, opts)
	if err != nil {
		return nil, err
	}
	return pagination.New[T](fetcher, opts.StartIndex, size)
}

func (c *Connector) resolvePageSize(size int) (int, error) {
	if size > pagination.MaxPageSize {
		return 0, apierr.Newf(apierr.KindIllegalArgument,
			"page size %d is greater than the maximum page size supported by Redmine (%d)", size, pagination.MaxPageSize)
	}
	if size == 0 {
		size = c.pageSize
	}
	return size, nil
}
