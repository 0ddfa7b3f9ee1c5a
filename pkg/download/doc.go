// Package download streams recording files to local disk or to a blob
// bucket.
//
// A Task names a recording URL and the directory it belongs in; the file
// name is the last segment of the URL path. Downloader.Download never
// returns errors out of band: the Outcome carries either the written path
// and advertised size or the failure.
//
//	d := download.New(httpClient, download.DirSink{})
//	out := d.Download(ctx, download.Task{URL: u, Directory: "downloads/1"})
//
// Bodies are copied straight from the response to the sink without being
// buffered in memory. A failed copy may leave a partial file behind.
package download
