package pagination

import (
	"context"
	"iter"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Paging limits of the Redmine API.
const (
	// MaxPageSize is the largest limit Redmine honours.
	MaxPageSize = 100

	// DefaultPageSize is used when a page size of 0 is configured; it is
	// also what Redmine applies when no limit is sent.
	DefaultPageSize = 25
)

// State is the lifecycle of a cursor.
type State int

const (
	// StateUninitialized means no page has been fetched and the total is unknown.
	StateUninitialized State = iota

	// StateActive means the total is known and records remain.
	StateActive

	// StateExhausted means every record up to the total has been delivered.
	StateExhausted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Paginator is a forward-only cursor over a paged collection.
type Paginator[T any] struct {
	fetcher    PageFetcher[T]
	entity     string
	pageSize   int
	startIndex int64

	nextIndex  int64
	total      int64
	totalKnown bool

	logger zerolog.Logger
}

// New creates a cursor at startIndex. pageSize 0 selects DefaultPageSize.
// No request is made until the first NextPage.
func New[T any](fetcher PageFetcher[T], startIndex int64, pageSize int) (*Paginator[T], error) {
	if fetcher == nil {
		return nil, apierr.New(apierr.KindIllegalArgument, "page fetcher is required")
	}
	if startIndex < 0 {
		return nil, apierr.Newf(apierr.KindIllegalArgument, "start index must be >= 0 (got %d)", startIndex)
	}
	if pageSize < 0 {
		return nil, apierr.Newf(apierr.KindIllegalArgument, "page size must be >= 0 (got %d)", pageSize)
	}
	if pageSize > MaxPageSize {
		return nil, apierr.Newf(apierr.KindIllegalArgument,
			"page size must be <= %d (got %d)", MaxPageSize, pageSize)
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	entity := "record"
	if named, ok := fetcher.(interface{ EntityName() string }); ok {
		entity = named.EntityName()
	}

	return &Paginator[T]{
		fetcher:    fetcher,
		entity:     entity,
		pageSize:   pageSize,
		startIndex: startIndex,
		nextIndex:  startIndex,
		logger:     log.With().Str("component", "paginator").Str("entity", entity).Logger(),
	}, nil
}

// Open builds a Fetcher for kind and query and a cursor over it.
func Open[T any](getter Getter, kind model.Kind[T], query Query, startIndex int64, pageSize int) (*Paginator[T], error) {
	fetcher, err := NewFetcher(getter, kind, query)
	if err != nil {
		return nil, err
	}
	return New[T](fetcher, startIndex, pageSize)
}

// PageSize returns the fixed page size.
func (p *Paginator[T]) PageSize() int { return p.pageSize }

// StartIndex returns the fixed start index.
func (p *Paginator[T]) StartIndex() int64 { return p.startIndex }

// NextIndex returns the offset the next page will be requested at.
func (p *Paginator[T]) NextIndex() int64 { return p.nextIndex }

// TotalCount returns the total declared by the last response. It fails with
// an illegal state error before the first successful fetch.
func (p *Paginator[T]) TotalCount() (int64, error) {
	if !p.totalKnown {
		return 0, apierr.New(apierr.KindIllegalState,
			"total count is unknown until the first page has been fetched")
	}
	return p.total, nil
}

// HasMore reports whether NextPage may be called. It is true while the total
// is unknown.
func (p *Paginator[T]) HasMore() bool {
	return !p.totalKnown || p.total-p.nextIndex > 0
}

// State returns the cursor's lifecycle state.
func (p *Paginator[T]) State() State {
	switch {
	case !p.totalKnown:
		return StateUninitialized
	case p.HasMore():
		return StateActive
	default:
		return StateExhausted
	}
}

// NextPage fetches the page at the cursor and advances it by the number of
// records received. The returned slice is never nil. On any error the cursor
// is left untouched, so the call can be repeated.
func (p *Paginator[T]) NextPage(ctx context.Context) ([]T, error) {
	if p.totalKnown && p.nextIndex >= p.total {
		return nil, p.wrap(apierr.Newf(apierr.KindIllegalState,
			"no more records: next index %d, total %d", p.nextIndex, p.total))
	}

	page, err := p.fetcher.FetchPage(ctx, p.nextIndex, p.pageSize)
	if err != nil {
		p.logger.Debug().Err(err).Int64("offset", p.nextIndex).Int("limit", p.pageSize).Msg("Page fetch failed")
		return nil, p.wrap(err)
	}

	var items []T
	var declared int64
	if page != nil {
		items = page.Items
		declared = page.TotalCount
	}

	if len(items) == 0 {
		if declared > p.nextIndex {
			// An empty page inside the declared range would never advance.
			return nil, p.violation(apierr.Newf(apierr.KindIllegalState,
				"server returned no records at offset %d but declares %d in total", p.nextIndex, declared))
		}
		p.total = max(declared, 0)
		p.totalKnown = true
		pagesFetchedTotal.WithLabelValues(p.entity).Inc()
		p.logPage(0)
		return []T{}, nil
	}

	if len(items) > p.pageSize {
		return nil, p.violation(apierr.Newf(apierr.KindIllegalState,
			"server returned %d records for a page size of %d", len(items), p.pageSize))
	}

	p.nextIndex += int64(len(items))
	p.total = declared
	p.totalKnown = true

	pagesFetchedTotal.WithLabelValues(p.entity).Inc()
	recordsFetchedTotal.WithLabelValues(p.entity).Add(float64(len(items)))
	p.logPage(len(items))

	return items, nil
}

// AllRecords collects every remaining record into memory. It continues from
// the current cursor position, not from the start index. Memory grows with
// the total, so use it for small result sets only.
func (p *Paginator[T]) AllRecords(ctx context.Context) ([]T, error) {
	all := []T{}
	for p.HasMore() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}

// All streams the remaining records. Iteration stops after the first error,
// which is yielded with the zero value.
func (p *Paginator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p.HasMore() {
			page, err := p.NextPage(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (p *Paginator[T]) wrap(err error) error {
	return &PageError{Entity: p.entity, Offset: p.nextIndex, Limit: p.pageSize, Err: err}
}

func (p *Paginator[T]) violation(err error) error {
	protocolViolationsTotal.WithLabelValues(p.entity).Inc()
	p.logger.Warn().Err(err).Int64("offset", p.nextIndex).Int("limit", p.pageSize).Msg("Protocol violation")
	return p.wrap(err)
}

func (p *Paginator[T]) logPage(received int) {
	p.logger.Debug().
		Int64("offset", p.nextIndex-int64(received)).
		Int("limit", p.pageSize).
		Int("received", received).
		Int64("total_count", p.total).
		Msg("Page fetched")
}
