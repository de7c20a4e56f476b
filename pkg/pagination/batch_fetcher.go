package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the number of pages requested in parallel.
	MaxConcurrency int

	// Timeout bounds each page request.
	Timeout time.Duration

	// PageSize is the limit sent with every request, 0 for DefaultPageSize.
	PageSize int
}

// DefaultConfig returns a configuration that stays polite to a single
// Redmine instance.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		PageSize:       MaxPageSize,
	}
}

// pageResult is the outcome of one page job.
type pageResult[T any] struct {
	index int
	items []T
	err   error
}

// BatchFetcher reads a whole result set with a worker pool. The first page is
// fetched alone to learn the total; the rest of the range is split into
// disjoint pages, each read by its own Paginator.
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  Config
}

// NewBatchFetcher creates a batch fetcher over fetcher.
func NewBatchFetcher[T any](fetcher PageFetcher[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll returns every record from startIndex to the end in server order.
// If a page fails the remaining work is cancelled and the records before the
// first missing page are returned together with the error.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, startIndex int64) ([]T, error) {
	start := time.Now()

	first, err := New(bf.fetcher, startIndex, bf.config.PageSize)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("component", "batch-fetcher").Str("entity", first.entity).Logger()

	firstCtx, cancelFirst := context.WithTimeout(ctx, bf.config.Timeout)
	firstPage, err := first.NextPage(firstCtx)
	cancelFirst()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	total, _ := first.TotalCount()
	pageSize := first.PageSize()
	if !first.HasMore() {
		logger.Info().
			Int("records", len(firstPage)).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return firstPage, nil
	}

	var offsets []int64
	for off := first.NextIndex(); off < total; off += int64(pageSize) {
		offsets = append(offsets, off)
	}

	logger.Info().
		Int64("total_count", total).
		Int("pages", len(offsets)+1).
		Int("workers", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(offsets))
	for i := range offsets {
		jobs <- i
	}
	close(jobs)

	results := make(chan pageResult[T], len(offsets))

	var wg sync.WaitGroup
	for w := 0; w < min(bf.config.MaxConcurrency, len(offsets)); w++ {
		wg.Add(1)
		go bf.worker(workCtx, w, offsets, pageSize, jobs, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make([][]T, len(offsets))
	done := make([]bool, len(offsets))
	var firstErr error
	fetched := 1
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		pages[res.index] = res.items
		done[res.index] = true
		fetched++

		if fetched%50 == 0 {
			logger.Info().
				Int("fetched", fetched).
				Int("total", len(offsets)+1).
				Msg("Fetch progress")
		}
	}

	records := append([]T{}, firstPage...)
	for i := range pages {
		if !done[i] {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
		records = append(records, pages[i]...)
	}

	if firstErr != nil {
		logger.Warn().
			Err(firstErr).
			Int("records", len(records)).
			Int64("total_count", total).
			Msg("Page fetch failed - returning partial results")
		return records, fmt.Errorf("batch fetch stopped after %d of %d records: %w", len(records), total-startIndex, firstErr)
	}

	logger.Info().
		Int("records", len(records)).
		Int("pages", fetched).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return records, nil
}

// worker reads one page per job with a fresh single-page cursor.
func (bf *BatchFetcher[T]) worker(ctx context.Context, workerID int, offsets []int64, pageSize int,
	jobs <-chan int, results chan<- pageResult[T], wg *sync.WaitGroup) {
	defer wg.Done()
	processed := 0

	for idx := range jobs {
		if ctx.Err() != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		items, err := bf.fetchOne(ctx, offsets[idx], pageSize)
		results <- pageResult[T]{index: idx, items: items, err: err}
		if err != nil {
			return
		}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", processed).
			Msg("Worker completed")
	}
}

// fetchOne reads the range [offset, offset+pageSize). A short page inside the
// declared total is followed by requests for the rest of the range.
func (bf *BatchFetcher[T]) fetchOne(ctx context.Context, offset int64, pageSize int) ([]T, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	end := offset + int64(pageSize)
	var items []T
	for cursor := offset; cursor < end; {
		p, err := New(bf.fetcher, cursor, int(end-cursor))
		if err != nil {
			return items, err
		}
		page, err := p.NextPage(pageCtx)
		if err != nil {
			return items, err
		}
		items = append(items, page...)
		if !p.HasMore() {
			break
		}
		cursor = p.NextIndex()
	}
	return items, nil
}
