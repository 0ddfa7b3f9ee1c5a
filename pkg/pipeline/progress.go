package pipeline

import (
	"sort"

	"github.com/Sternrassler/cdr-recordings/pkg/download"
)

// URLOutcome is the result of one recording download within a page.
type URLOutcome struct {
	URL     string
	Success bool
	Path    string
	Size    int64
	Error   string
}

// PageProgress is the state of one attempted page. Success is false when
// the fetch failed or any of its downloads failed.
type PageProgress struct {
	Success bool
	URLs    []URLOutcome
}

// Progress maps page numbers to their outcome.
type Progress struct {
	Pages map[int]PageProgress
}

// Summary aggregates a Progress for reporting.
type Summary struct {
	Pages           int
	FailedPages     int
	Downloads       int
	FailedDownloads int
	Bytes           int64
}

func newProgress() *Progress {
	return &Progress{Pages: make(map[int]PageProgress)}
}

// pageReport is sent to the progress writer once a page has settled.
type pageReport struct {
	page     int
	fetched  bool
	outcomes []download.Outcome
}

func (p *Progress) record(r pageReport) {
	entry := PageProgress{Success: r.fetched, URLs: []URLOutcome{}}
	for _, out := range r.outcomes {
		u := URLOutcome{URL: out.URL, Success: !out.Failed()}
		if out.Failed() {
			u.Error = out.Err.Error()
			entry.Success = false
		} else {
			u.Path = out.FilePath
			u.Size = out.Size
		}
		entry.URLs = append(entry.URLs, u)
	}
	p.Pages[r.page] = entry
}

// SortedPages returns the attempted page numbers in ascending order.
func (p *Progress) SortedPages() []int {
	pages := make([]int, 0, len(p.Pages))
	for page := range p.Pages {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Failed reports whether any page or download failed.
func (p *Progress) Failed() bool {
	for _, entry := range p.Pages {
		if !entry.Success {
			return true
		}
	}
	return false
}

// Summary counts pages, downloads and bytes.
func (p *Progress) Summary() Summary {
	var s Summary
	for _, entry := range p.Pages {
		s.Pages++
		if !entry.Success {
			s.FailedPages++
		}
		for _, u := range entry.URLs {
			s.Downloads++
			if !u.Success {
				s.FailedDownloads++
			}
			s.Bytes += u.Size
		}
	}
	return s
}
