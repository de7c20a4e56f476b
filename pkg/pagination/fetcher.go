package pagination

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/codec"
	"github.com/Sternrassler/redmine-connector/pkg/model"
)

// Getter issues one GET and returns the response body. *client.Client
// satisfies it.
type Getter interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// PageFetcher returns one page of a collection.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, offset int64, limit int) (*model.Page[T], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, offset int64, limit int) (*model.Page[T], error)

// FetchPage calls f.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, offset int64, limit int) (*model.Page[T], error) {
	return f(ctx, offset, limit)
}

// Query is the request template of a collection: a path plus includes and
// filters. offset and limit are owned by the fetcher.
type Query struct {
	Path     string
	Includes []string
	Params   url.Values
}

// URL renders the template for one page. Parameters come in a stable order
// with offset and limit always last:
//
//	/issues.xml?include=journals,relations&project_id=1&offset=20&limit=20
func (q Query) URL(offset int64, limit int) string {
	var parts []string
	if len(q.Includes) > 0 {
		parts = append(parts, "include="+strings.Join(q.Includes, ","))
	}

	names := make([]string, 0, len(q.Params))
	for name := range q.Params {
		switch name {
		case "offset", "limit", "include":
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range q.Params[name] {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
		}
	}

	parts = append(parts,
		"offset="+strconv.FormatInt(offset, 10),
		"limit="+strconv.Itoa(limit))

	sep := "?"
	if strings.Contains(q.Path, "?") {
		sep = "&"
	}
	return q.Path + sep + strings.Join(parts, "&")
}

// Fetcher fetches pages of one entity kind through a Getter.
type Fetcher[T any] struct {
	getter Getter
	kind   model.Kind[T]
	query  Query
}

// NewFetcher binds a getter, an entity kind and a query template.
func NewFetcher[T any](getter Getter, kind model.Kind[T], query Query) (*Fetcher[T], error) {
	if getter == nil {
		return nil, apierr.New(apierr.KindIllegalArgument, "getter is required")
	}
	if !kind.Valid() {
		return nil, apierr.New(apierr.KindIllegalArgument, "entity kind is required")
	}
	if strings.TrimSpace(query.Path) == "" {
		return nil, apierr.New(apierr.KindIllegalArgument, "query path is required")
	}
	return &Fetcher[T]{getter: getter, kind: kind, query: query}, nil
}

// EntityName returns the kind's name, used for metrics and errors.
func (f *Fetcher[T]) EntityName() string {
	return f.kind.Name
}

// FetchPage issues one GET for the page and decodes it into the kind's
// container. Gateway errors are returned unchanged; a body that does not
// decode is a data conversion error.
func (f *Fetcher[T]) FetchPage(ctx context.Context, offset int64, limit int) (*model.Page[T], error) {
	body, err := f.getter.Get(ctx, f.query.URL(offset, limit))
	if err != nil {
		return nil, err
	}

	container := f.kind.NewContainer()
	if err := codec.Decode(body, container); err != nil {
		return nil, err
	}
	return model.PageFrom(container), nil
}
