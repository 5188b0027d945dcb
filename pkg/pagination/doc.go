// Package pagination computes request parameters and stop conditions for
// paginated REST APIs.
//
// Four styles are supported, selected by Config.Type:
//
//   - PAGE_NUMBER: page=N&page_size=S, N counting from StartPage (default 1)
//   - OFFSET: offset=K&limit=S, K advancing by S per fetched page
//   - CURSOR: cursor=<token>&limit=S, token read from CursorPath in each response
//   - NONE: a single request without pagination parameters
//
// Every style stops when a page yields zero records or when MaxPages pages
// have been fetched. MaxPages is an absolute ceiling: a server that would
// keep returning data, or keep handing out cursors, is not followed past it.
// A CURSOR run also stops when the next cursor is missing, null, empty, not a
// string or number, or equal to the one just sent.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig(pagination.TypePageNumber)
//	cfg.MaxPages = 10
//	strategy, err := pagination.NewStrategy(cfg)
//	state := pagination.NewState(cfg)
//	for {
//		params := strategy.Params(state)
//		// fetch with params, extract records ...
//		state.Record(len(records))
//		if !strategy.Continue(state, len(records), body) {
//			break
//		}
//		strategy.Advance(state, body)
//	}
//
// A State belongs to exactly one ingest run and is never shared.
package pagination
