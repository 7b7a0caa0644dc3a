// Package pagination walks a Socrata resource with $limit/$offset paging.
//
// Socrata does not report a total row count with each page, so the fetcher
// pages sequentially until the API returns an empty page or the configured
// record cap is reached. A stable $order expression keeps pages consistent
// while the dataset is appended to upstream.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	fetcher := pagination.NewFetcher(socrataClient, cfg)
//	records, err := fetcher.FetchAll(ctx, "ydr8-5enu")
//
// The fetcher:
//   - Requests page N+1 at offset N x PageSize
//   - Stops on the first empty page or once offset >= MaxRecords
//   - Pauses through a Pacer between requests
//   - Fails the whole run on the first page error (no partial results)
package pagination
