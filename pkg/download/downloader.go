package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/cdr-recordings/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdr_downloads_total",
		Help: "Recording downloads by result",
	}, []string{"result"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdr_download_bytes_total",
		Help: "Bytes written to the sink",
	})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cdr_download_duration_seconds",
		Help:    "Time to download one recording",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// Getter issues GET requests. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string) (*http.Response, error)
}

// Downloader fetches recordings and writes them into a Sink.
type Downloader struct {
	http   Getter
	sink   Sink
	logger zerolog.Logger
}

// New creates a downloader. A nil sink writes to the local filesystem.
func New(getter Getter, sink Sink) *Downloader {
	if sink == nil {
		sink = DirSink{}
	}
	return &Downloader{
		http:   getter,
		sink:   sink,
		logger: log.With().Str("component", "download").Logger(),
	}
}

// Download fetches task.URL into task.Directory. It never panics on I/O
// failure; every error is returned in the Outcome.
func (d *Downloader) Download(ctx context.Context, task Task) Outcome {
	start := time.Now()
	out := d.download(ctx, task)
	downloadDuration.Observe(time.Since(start).Seconds())

	if out.Failed() {
		downloadsTotal.WithLabelValues("error").Inc()
		d.logger.Warn().Err(out.Err).Str("url", task.URL).Msg("Download failed")
		return out
	}

	downloadsTotal.WithLabelValues("success").Inc()
	d.logger.Debug().
		Str("url", task.URL).
		Str("path", out.FilePath).
		Int64("bytes", out.Size).
		Msg("Download complete")
	return out
}

func (d *Downloader) download(ctx context.Context, task Task) Outcome {
	out := Outcome{URL: task.URL}

	name, err := FileName(task.URL)
	if err != nil {
		out.Err = fmt.Errorf("derive file name: %w", err)
		return out
	}

	if err := d.sink.Prepare(ctx, task.Directory); err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrSink, err)
		return out
	}

	resp, err := d.http.Get(ctx, task.URL)
	if err != nil {
		out.Err = err
		return out
	}
	defer resp.Body.Close()

	if err := client.CheckResponse(resp); err != nil {
		out.Err = err
		return out
	}

	w, filePath, err := d.sink.Create(ctx, task.Directory, name)
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrSink, err)
		return out
	}

	written, err := io.Copy(w, resp.Body)
	downloadBytesTotal.Add(float64(written))
	if err != nil {
		w.Close()
		out.Err = fmt.Errorf("stream body: %w", err)
		return out
	}
	if err := w.Close(); err != nil {
		out.Err = fmt.Errorf("%w: close: %w", ErrSink, err)
		return out
	}

	out.FilePath = filePath
	out.Size = advertisedSize(resp)
	return out
}

// advertisedSize is the response Content-Length, or 0 when unknown.
func advertisedSize(resp *http.Response) int64 {
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}
