// Package pagination iterates Redmine collections that are paged with the
// offset/limit protocol.
//
// A Fetcher turns (offset, limit) into one decoded page of a collection. A
// Paginator is a forward-only cursor over a Fetcher:
//
//	p, err := pagination.Open(gateway, model.Issues, pagination.Query{
//		Path:   "/issues.xml",
//		Params: url.Values{"project_id": {"1"}},
//	}, 0, 25)
//	for p.HasMore() {
//		issues, err := p.NextPage(ctx)
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// The cursor advances by the number of records the server actually returned,
// never by the requested page size, and takes the total from every response.
// A Paginator is not safe for concurrent use. BatchFetcher reads large result
// sets with several independent paginators over disjoint offset ranges.
package pagination
