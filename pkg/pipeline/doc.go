// Package pipeline drives a complete recordings run.
//
// The history API reports the total page count only in the first page, so a
// run always starts there:
//
//	orch := pipeline.New(fetcher, downloader, pipeline.DefaultConfig())
//	progress, err := orch.Run(ctx)
//
// The orchestrator:
//   - Fetches page 1 and stops the run if it fails
//   - Downloads every page-1 recording before issuing any other fetch
//   - Fetches pages 2..last_page through a bounded fetch queue
//   - Downloads each page's recordings through a separate bounded queue
//   - Records one Progress entry per attempted page
//
// Failures on pages after the first are recorded and never stop the run.
package pipeline
