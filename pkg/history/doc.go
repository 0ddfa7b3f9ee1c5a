// Package history fetches pages of answered call records from the call
// history API.
//
// The API is queried with a POST to api/histories carrying a date range and
// a 1-based page number. Pages hold up to ten records; the first response
// reports the last page number, which drives how many further pages exist.
//
//	f := history.NewFetcher(apiClient, nil, "")
//	res := f.FetchPage(ctx, history.PageRequest{StartDate: from, EndDate: to, Page: 1})
//	if res.Failed() {
//		// res.Err describes the transport, status or decoding failure
//	}
//
// FetchPage never returns errors out of band: every failure is carried in
// the PageResult. An optional PageCache short-circuits repeated queries.
package history
