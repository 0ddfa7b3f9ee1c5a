package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/cdr-recordings/pkg/cache"
	"github.com/Sternrassler/cdr-recordings/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Fixed query parameters of the history endpoint.
const (
	Endpoint     = "api/histories"
	PerPage      = 10
	StatusCall   = "ANSWERED"
	TypeDuration = "="
)

// maxPageBytes caps how much of a page response is read.
const maxPageBytes = 16 << 20

// Poster sends a JSON body to a path of the API. *client.Client implements it.
type Poster interface {
	PostJSON(ctx context.Context, path string, payload any) (*http.Response, error)
}

// PageCache stores raw page bodies. *cache.Manager implements it.
type PageCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Fetcher issues history page queries.
type Fetcher struct {
	api    Poster
	cache  PageCache
	scope  string
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. pageCache may be nil. scope separates cached
// pages of different API accounts sharing one cache; build it with CacheScope.
func NewFetcher(api Poster, pageCache PageCache, scope string) *Fetcher {
	return &Fetcher{
		api:    api,
		cache:  pageCache,
		scope:  scope,
		logger: log.With().Str("component", "history").Logger(),
	}
}

// CacheScope identifies an API account by base URL and a short token digest.
// The token itself never reaches the cache.
func CacheScope(baseURL, token string) string {
	base := strings.TrimRight(baseURL, "/")
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		base = strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
	}
	sum := sha256.Sum256([]byte(token))
	return base + "#" + hex.EncodeToString(sum[:6])
}

// FetchPage retrieves one page. All failures are reported in the result.
func (f *Fetcher) FetchPage(ctx context.Context, req PageRequest) PageResult {
	result := PageResult{Request: req}

	if req.Page < 1 {
		result.Err = fmt.Errorf("invalid page number %d", req.Page)
		return result
	}

	query := newQuery(req)
	key := cacheKey(f.scope, query)

	if body, ok := f.cached(ctx, key); ok {
		if err := decodeInto(&result, body); err == nil {
			f.logger.Debug().Int("page", req.Page).Msg("Page served from cache")
			return result
		}
		f.logger.Warn().Int("page", req.Page).Msg("Discarding undecodable cached page")
	}

	body, err := f.post(ctx, query)
	if err != nil {
		result.Err = fmt.Errorf("fetch page %d: %w", req.Page, err)
		return result
	}

	if err := decodeInto(&result, body); err != nil {
		result.Err = fmt.Errorf("decode page %d: %w", req.Page, err)
		return result
	}

	f.store(ctx, key, body)

	f.logger.Info().
		Int("page", result.CurrentPage).
		Int("last_page", result.LastPage).
		Int("records", len(result.Records)).
		Msg("Page fetched")

	return result
}

func (f *Fetcher) post(ctx context.Context, query historyQuery) ([]byte, error) {
	resp, err := f.api.PostJSON(ctx, Endpoint, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := client.CheckResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) cached(ctx context.Context, key cache.CacheKey) ([]byte, bool) {
	if f.cache == nil {
		return nil, false
	}
	entry, err := f.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.logger.Warn().Err(err).Msg("Page cache get error")
		}
		return nil, false
	}
	return entry.Data, true
}

func (f *Fetcher) store(ctx context.Context, key cache.CacheKey, body []byte) {
	if f.cache == nil {
		return
	}
	entry := &cache.CacheEntry{Data: body, CachedAt: time.Now()}
	if err := f.cache.Set(ctx, key, entry); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to cache page")
	}
}

func newQuery(req PageRequest) historyQuery {
	return historyQuery{
		DateFrom:     req.StartDate.Format(DateLayout),
		DateTo:       req.EndDate.Format(DateLayout),
		TypeDuration: TypeDuration,
		Page:         req.Page,
		PerPage:      PerPage,
		Search:       "",
		StatusCall:   StatusCall,
	}
}

func cacheKey(scope string, q historyQuery) cache.CacheKey {
	return cache.CacheKey{
		Endpoint: Endpoint,
		Params: url.Values{
			"scope":           {scope},
			"datefilter_from": {q.DateFrom},
			"datefilter_to":   {q.DateTo},
			"page":            {strconv.Itoa(q.Page)},
			"per_page":        {strconv.Itoa(q.PerPage)},
			"status_call":     {q.StatusCall},
		},
	}
}

// decodeInto parses body and fills the page fields of result.
func decodeInto(result *PageResult, body []byte) error {
	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	switch {
	case resp.Data == nil:
		return fmt.Errorf("%w: missing data", ErrMalformedPage)
	case resp.Data.CDRData == nil:
		return fmt.Errorf("%w: missing data.cdr_data", ErrMalformedPage)
	case resp.Data.CDRData.Data == nil:
		return fmt.Errorf("%w: missing data.cdr_data.data", ErrMalformedPage)
	}

	cdr := resp.Data.CDRData
	records := make([]RecordRef, 0, len(*cdr.Data))
	for _, rec := range *cdr.Data {
		if rec.RecordFile == "" {
			continue
		}
		records = append(records, RecordRef{FileURL: rec.RecordFile})
	}

	result.Records = records
	result.CurrentPage = cdr.CurrentPage
	if result.CurrentPage == 0 {
		result.CurrentPage = result.Request.Page
	}
	result.LastPage = 0
	if cdr.LastPage != nil && *cdr.LastPage > 0 {
		result.LastPage = *cdr.LastPage
	}
	return nil
}
