// Package pagination walks cursor-paginated Evergreen REST listings.
//
// Evergreen returns one page per request and advertises the next page in
// an RFC 8288 Link header (rel="next"). Pages must be fetched in order,
// so the walker is sequential and exposes the listing as a lazy
// iter.Seq2: a page is only requested once the consumer has ranged past
// every item of the previous one, and stopping the range stops paging.
//
// Example usage:
//
//	walker := pagination.NewWalker[patch.Summary](fetcher, pagination.DefaultConfig())
//	for item, err := range walker.Items(ctx, firstURL) {
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// A fetch error ends the sequence with that error; no partial page is
// yielded and nothing is retried here (retries live in the HTTP client).
package pagination
