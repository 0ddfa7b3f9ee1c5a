package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Sternrassler/cdr-recordings/pkg/download"
	"github.com/Sternrassler/cdr-recordings/pkg/history"
	"github.com/Sternrassler/cdr-recordings/pkg/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrFirstPageFailed is returned by Run when page 1 cannot be fetched.
var ErrFirstPageFailed = errors.New("first page fetch failed")

// progressLogInterval controls how often page progress is logged.
const progressLogInterval = 50

// Config holds orchestrator configuration.
type Config struct {
	StartDate time.Time
	EndDate   time.Time

	// OutputDir is the root under which each page gets its own directory.
	OutputDir string

	// FetchConcurrency caps concurrent page fetches.
	FetchConcurrency int

	// DownloadConcurrency caps concurrent recording downloads.
	DownloadConcurrency int

	// MaxPageChains caps pages 2..last_page in flight at once, each holding
	// its fetched records until its downloads settle. Never below
	// FetchConcurrency.
	MaxPageChains int
}

// DefaultConfig returns the default concurrency and output settings.
func DefaultConfig() Config {
	return Config{
		OutputDir:           "./downloads",
		FetchConcurrency:    4,
		DownloadConcurrency: 4,
		MaxPageChains:       256,
	}
}

// PageFetcher fetches one history page. *history.Fetcher implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, req history.PageRequest) history.PageResult
}

// FileDownloader downloads one recording. *download.Downloader implements it.
type FileDownloader interface {
	Download(ctx context.Context, task download.Task) download.Outcome
}

// Orchestrator runs the fetch-then-download chain for every page.
type Orchestrator struct {
	fetcher    PageFetcher
	downloader FileDownloader
	config     Config

	fetchQueue    *queue.Queue[history.PageResult]
	downloadQueue *queue.Queue[download.Outcome]

	logger zerolog.Logger
}

// New creates an orchestrator. Concurrency values below 1 fall back to the
// defaults.
func New(fetcher PageFetcher, downloader FileDownloader, config Config) *Orchestrator {
	defaults := DefaultConfig()
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = defaults.FetchConcurrency
	}
	if config.DownloadConcurrency <= 0 {
		config.DownloadConcurrency = defaults.DownloadConcurrency
	}
	if config.OutputDir == "" {
		config.OutputDir = defaults.OutputDir
	}
	if config.MaxPageChains <= 0 {
		config.MaxPageChains = defaults.MaxPageChains
	}
	if config.MaxPageChains < config.FetchConcurrency {
		config.MaxPageChains = config.FetchConcurrency
	}

	return &Orchestrator{
		fetcher:       fetcher,
		downloader:    downloader,
		config:        config,
		fetchQueue:    queue.New[history.PageResult]("fetch", config.FetchConcurrency),
		downloadQueue: queue.New[download.Outcome]("download", config.DownloadConcurrency),
		logger:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Run fetches page 1, downloads its recordings, then processes pages
// 2..last_page concurrently. The returned Progress has one entry per
// attempted page. The only error is ErrFirstPageFailed; every other failure
// is recorded in the Progress.
func (o *Orchestrator) Run(ctx context.Context) (*Progress, error) {
	start := time.Now()

	progress := newProgress()
	reports := make(chan pageReport)
	written := make(chan struct{})
	go func() {
		defer close(written)
		settled := 0
		for r := range reports {
			progress.record(r)
			settled++
			if settled%progressLogInterval == 0 {
				o.logger.Info().Int("pages_settled", settled).Msg("Run progress")
			}
		}
	}()
	finish := func() {
		close(reports)
		<-written
	}

	first := o.fetch(ctx, 1)
	if first.Failed() {
		reports <- pageReport{page: 1}
		finish()
		o.logger.Error().Err(first.Err).Msg("First page fetch failed, stopping run")
		return progress, fmt.Errorf("%w: %w", ErrFirstPageFailed, first.Err)
	}
	reports <- pageReport{page: 1, fetched: true, outcomes: o.downloadPage(ctx, first)}

	lastPage := first.LastPage
	o.logger.Info().
		Int("last_page", lastPage).
		Int("fetch_concurrency", o.config.FetchConcurrency).
		Int("download_concurrency", o.config.DownloadConcurrency).
		Msg("Starting parallel page fetch")

	var g errgroup.Group
	g.SetLimit(o.config.MaxPageChains)
	for page := 2; page <= lastPage; page++ {
		g.Go(func() error {
			reports <- o.processPage(ctx, page)
			return nil
		})
	}
	g.Wait()
	finish()

	summary := progress.Summary()
	o.logger.Info().
		Int("pages", summary.Pages).
		Int("failed_pages", summary.FailedPages).
		Int("downloads", summary.Downloads).
		Int("failed_downloads", summary.FailedDownloads).
		Int64("bytes", summary.Bytes).
		Dur("duration", time.Since(start)).
		Msg("Run complete")

	return progress, nil
}

// processPage runs the fetch-then-download chain for one page.
func (o *Orchestrator) processPage(ctx context.Context, page int) pageReport {
	result := o.fetch(ctx, page)
	if result.Failed() {
		o.logger.Warn().Err(result.Err).Int("page", page).Msg("Page fetch failed")
		return pageReport{page: page}
	}
	return pageReport{page: page, fetched: true, outcomes: o.downloadPage(ctx, result)}
}

// fetch submits one page request to the fetch queue and waits for it.
func (o *Orchestrator) fetch(ctx context.Context, page int) history.PageResult {
	req := history.PageRequest{
		StartDate: o.config.StartDate,
		EndDate:   o.config.EndDate,
		Page:      page,
	}
	future := o.fetchQueue.Submit(func() (history.PageResult, error) {
		return o.fetcher.FetchPage(ctx, req), nil
	})

	result, err := future.Wait(ctx)
	if err != nil {
		return history.PageResult{Request: req, Err: err}
	}
	return result
}

// downloadPage fans the page's records out to the download queue and waits
// for all of them. Outcomes keep record order.
func (o *Orchestrator) downloadPage(ctx context.Context, result history.PageResult) []download.Outcome {
	dir := o.PageDir(result.Request.Page)

	futures := make([]*queue.Future[download.Outcome], 0, len(result.Records))
	for _, rec := range result.Records {
		task := download.Task{URL: rec.FileURL, Directory: dir}
		futures = append(futures, o.downloadQueue.Submit(func() (download.Outcome, error) {
			return o.downloader.Download(ctx, task), nil
		}))
	}

	outcomes := make([]download.Outcome, 0, len(futures))
	for i, f := range futures {
		out, err := f.Wait(ctx)
		if err != nil {
			out = download.Outcome{URL: result.Records[i].FileURL, Err: err}
		}
		outcomes = append(outcomes, out)
	}

	o.logger.Debug().
		Int("page", result.Request.Page).
		Int("records", len(result.Records)).
		Msg("Page downloads settled")
	return outcomes
}

// PageDir returns the directory recordings of page are written to.
func (o *Orchestrator) PageDir(page int) string {
	return filepath.Join(o.config.OutputDir, strconv.Itoa(page))
}
