package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/cdr-recordings/internal/testutil"
	"github.com/Sternrassler/cdr-recordings/pkg/cache"
	"github.com/Sternrassler/cdr-recordings/pkg/client"
)

func newTestFetcher(t *testing.T, mock *testutil.MockAPI, pageCache PageCache) *Fetcher {
	t.Helper()
	apiClient, err := client.New(client.DefaultConfig(mock.URL(), "test-token"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return NewFetcher(apiClient, pageCache, CacheScope(mock.URL(), "test-token"))
}

func testRequest(page int) PageRequest {
	return PageRequest{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Page:      page,
	}
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPageRecords(1, 3, "https://x/y/r1.wav", "https://x/y/r2.wav")

	result := newTestFetcher(t, mock, nil).FetchPage(context.Background(), testRequest(1))

	if result.Failed() {
		t.Fatalf("FetchPage() failed: %v", result.Err)
	}
	if result.CurrentPage != 1 || result.LastPage != 3 {
		t.Errorf("pages = (%d, %d), want (1, 3)", result.CurrentPage, result.LastPage)
	}
	urls := result.URLs()
	if len(urls) != 2 || urls[0] != "https://x/y/r1.wav" || urls[1] != "https://x/y/r2.wav" {
		t.Errorf("URLs() = %v", urls)
	}
}

func TestFetchPage_RequestBody(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPageRecords(2, 2)

	newTestFetcher(t, mock, nil).FetchPage(context.Background(), testRequest(2))

	query := mock.LastQuery()
	expected := map[string]any{
		"datefilter_from": "2024-01-01",
		"datefilter_to":   "2024-01-02",
		"typeDuration":    "=",
		"page":            float64(2),
		"per_page":        float64(10),
		"search":          "",
		"status_call":     "ANSWERED",
	}
	for key, want := range expected {
		got, ok := query[key]
		if !ok {
			t.Errorf("body missing %q", key)
			continue
		}
		if got != want {
			t.Errorf("body[%q] = %v, want %v", key, got, want)
		}
	}
	if auth := mock.LastAuthorization(); auth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer test-token")
	}
}

func TestFetchPage_Failures(t *testing.T) {
	tests := []struct {
		name      string
		response  testutil.MockResponse
		wantErr   error
		wantInMsg string
	}{
		{
			name:      "server error",
			response:  testutil.NewServerErrorResponse(),
			wantInMsg: "HTTP 500",
		},
		{
			name:      "unauthorized",
			response:  testutil.NewUnauthorizedResponse(),
			wantInMsg: "HTTP 401",
		},
		{
			name:     "invalid json",
			response: testutil.MockResponse{StatusCode: 200, Body: "<html>"},
			wantErr:  ErrMalformedPage,
		},
		{
			name:     "missing data",
			response: testutil.MockResponse{StatusCode: 200, Body: `{"message":"ok"}`},
			wantErr:  ErrMalformedPage,
		},
		{
			name:     "missing cdr_data",
			response: testutil.MockResponse{StatusCode: 200, Body: `{"data":{}}`},
			wantErr:  ErrMalformedPage,
		},
		{
			name:     "missing records",
			response: testutil.MockResponse{StatusCode: 200, Body: `{"data":{"cdr_data":{"current_page":1,"last_page":2}}}`},
			wantErr:  ErrMalformedPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetPage(1, tt.response)

			result := newTestFetcher(t, mock, nil).FetchPage(context.Background(), testRequest(1))

			if !result.Failed() {
				t.Fatal("FetchPage() should fail")
			}
			if tt.wantErr != nil && !errors.Is(result.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", result.Err, tt.wantErr)
			}
			if tt.wantInMsg != "" && !strings.Contains(result.Err.Error(), tt.wantInMsg) {
				t.Errorf("Err = %q, want it to contain %q", result.Err, tt.wantInMsg)
			}
			if len(result.Records) != 0 {
				t.Errorf("Records = %v, want none on failure", result.Records)
			}
			if result.Request.Page != 1 {
				t.Errorf("Request.Page = %d, want 1", result.Request.Page)
			}
		})
	}
}

func TestFetchPage_Timeout(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPage(1, testutil.NewSlowResponse(1, 1, 300*time.Millisecond))

	cfg := client.DefaultConfig(mock.URL(), "t")
	cfg.Timeout = 50 * time.Millisecond
	apiClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	result := NewFetcher(apiClient, nil, "").FetchPage(context.Background(), testRequest(1))

	if !result.Failed() {
		t.Fatal("FetchPage() should fail on timeout")
	}
	if !client.IsNetworkError(result.Err) {
		t.Errorf("Err = %v, want network error", result.Err)
	}
}

func TestFetchPage_InvalidPage(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	result := newTestFetcher(t, mock, nil).FetchPage(context.Background(), testRequest(0))

	if !result.Failed() {
		t.Error("FetchPage(0) should fail")
	}
	if mock.PageRequestCount() != 0 {
		t.Errorf("PageRequestCount() = %d, want 0", mock.PageRequestCount())
	}
}

func TestDecodeInto(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCurrent int
		wantLast    int
		wantRecords int
		wantErr     bool
	}{
		{
			name:        "null last page",
			body:        `{"data":{"cdr_data":{"current_page":1,"last_page":null,"data":[{"record_file":"https://x/a.wav"}]}}}`,
			wantCurrent: 1,
			wantLast:    0,
			wantRecords: 1,
		},
		{
			name:        "absent current page falls back to request",
			body:        `{"data":{"cdr_data":{"last_page":4,"data":[]}}}`,
			wantCurrent: 7,
			wantLast:    4,
		},
		{
			name:        "empty record_file skipped",
			body:        `{"data":{"cdr_data":{"current_page":1,"last_page":1,"data":[{"record_file":""},{"record_file":"https://x/b.wav"}]}}}`,
			wantCurrent: 1,
			wantLast:    1,
			wantRecords: 1,
		},
		{
			name:    "records not an array",
			body:    `{"data":{"cdr_data":{"current_page":1,"last_page":1,"data":"nope"}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PageResult{Request: PageRequest{Page: 7}}
			err := decodeInto(&result, []byte(tt.body))

			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeInto() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if result.CurrentPage != tt.wantCurrent {
				t.Errorf("CurrentPage = %d, want %d", result.CurrentPage, tt.wantCurrent)
			}
			if result.LastPage != tt.wantLast {
				t.Errorf("LastPage = %d, want %d", result.LastPage, tt.wantLast)
			}
			if len(result.Records) != tt.wantRecords {
				t.Errorf("len(Records) = %d, want %d", len(result.Records), tt.wantRecords)
			}
		})
	}
}

// memoryCache is an in-process PageCache.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*cache.CacheEntry
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*cache.CacheEntry)}
}

func (c *memoryCache) Get(_ context.Context, key cache.CacheKey) (*cache.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	entry, ok := c.entries[key.String()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return entry, nil
}

func (c *memoryCache) Set(_ context.Context, key cache.CacheKey, entry *cache.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = entry
	return nil
}

func TestFetchPage_CacheHitSkipsRequest(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPageRecords(1, 2, "https://x/y/r1.wav")

	pageCache := newMemoryCache()
	fetcher := newTestFetcher(t, mock, pageCache)

	first := fetcher.FetchPage(context.Background(), testRequest(1))
	second := fetcher.FetchPage(context.Background(), testRequest(1))

	if first.Failed() || second.Failed() {
		t.Fatalf("FetchPage() failed: %v / %v", first.Err, second.Err)
	}
	if mock.PageRequestCount() != 1 {
		t.Errorf("PageRequestCount() = %d, want 1", mock.PageRequestCount())
	}
	if second.LastPage != 2 || len(second.Records) != 1 {
		t.Errorf("cached result = %+v", second)
	}
}

func TestFetchPage_CacheErrorFallsBackToAPI(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPageRecords(1, 1, "https://x/y/r1.wav")

	pageCache := newMemoryCache()
	pageCache.getErr = errors.New("connection refused")

	result := newTestFetcher(t, mock, pageCache).FetchPage(context.Background(), testRequest(1))

	if result.Failed() {
		t.Fatalf("FetchPage() failed: %v", result.Err)
	}
	if mock.PageRequestCount() != 1 {
		t.Errorf("PageRequestCount() = %d, want 1", mock.PageRequestCount())
	}
}

func TestFetchPage_FailedPageNotCached(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPage(1, testutil.NewServerErrorResponse())

	pageCache := newMemoryCache()
	newTestFetcher(t, mock, pageCache).FetchPage(context.Background(), testRequest(1))

	if len(pageCache.entries) != 0 {
		t.Errorf("cache holds %d entries, want 0", len(pageCache.entries))
	}
}

func TestFetchPage_SharedCacheSeparatesAccounts(t *testing.T) {
	first := testutil.NewMockAPI()
	defer first.Close()
	first.SetPageRecords(1, 1, "https://x/first/r1.wav")

	second := testutil.NewMockAPI()
	defer second.Close()
	second.SetPageRecords(1, 1, "https://x/second/r1.wav", "https://x/second/r2.wav")

	pageCache := newMemoryCache()
	a := newTestFetcher(t, first, pageCache).FetchPage(context.Background(), testRequest(1))
	b := newTestFetcher(t, second, pageCache).FetchPage(context.Background(), testRequest(1))

	if a.Failed() || b.Failed() {
		t.Fatalf("FetchPage() failed: %v / %v", a.Err, b.Err)
	}
	if second.PageRequestCount() != 1 {
		t.Errorf("second PageRequestCount() = %d, want 1", second.PageRequestCount())
	}
	if got := b.URLs(); len(got) != 2 || got[0] != "https://x/second/r1.wav" {
		t.Errorf("second URLs() = %v, want records of the second server", got)
	}
	if len(pageCache.entries) != 2 {
		t.Errorf("cache holds %d entries, want 2", len(pageCache.entries))
	}
}

func TestCacheScope(t *testing.T) {
	base := CacheScope("https://pbx.example.com", "token-a")

	if base != CacheScope("https://PBX.example.com/", "token-a") {
		t.Error("CacheScope() should ignore host case and trailing slash")
	}
	if base == CacheScope("https://other.example.com", "token-a") {
		t.Error("CacheScope() should differ by host")
	}
	if base == CacheScope("https://pbx.example.com", "token-b") {
		t.Error("CacheScope() should differ by token")
	}
	if strings.Contains(base, "token-a") {
		t.Errorf("CacheScope() = %q leaks the token", base)
	}
}
