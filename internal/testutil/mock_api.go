// Package testutil provides an in-process call history API and recording
// server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HistoriesPath is the path the mock serves pages on.
const HistoriesPath = "/api/histories"

// RecordingsPrefix is the path prefix the mock serves recordings under.
const RecordingsPrefix = "/recordings/"

// MockResponse defines the behavior for one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable call history API that also serves recordings.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	pages     map[int]MockResponse
	files     map[string]MockResponse
	requested []int
	lastQuery map[string]any
	lastAuth  string

	fileRequests  int
	inFlightFiles int
	peakFiles     int
}

// NewMockAPI starts a mock server.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		pages: make(map[int]MockResponse),
		files: make(map[string]MockResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(HistoriesPath, m.handleHistories)
	mux.HandleFunc(RecordingsPrefix, m.handleRecording)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// FileURL returns the absolute URL of a recording served by the mock.
func (m *MockAPI) FileURL(name string) string {
	return m.server.URL + RecordingsPrefix + name
}

// SetPage configures the response for one page number.
func (m *MockAPI) SetPage(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// SetPageRecords serves page with the given last page and recording URLs.
func (m *MockAPI) SetPageRecords(page, lastPage int, urls ...string) {
	m.SetPage(page, NewPageResponse(page, lastPage, urls...))
}

// SetFile configures the response for one recording name.
func (m *MockAPI) SetFile(name string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = resp
}

// AddFile serves content under name and returns its URL.
func (m *MockAPI) AddFile(name, content string) string {
	m.SetFile(name, MockResponse{StatusCode: http.StatusOK, Body: content})
	return m.FileURL(name)
}

// RequestedPages returns every page number requested, sorted.
func (m *MockAPI) RequestedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := append([]int(nil), m.requested...)
	sort.Ints(pages)
	return pages
}

// PageRequestCount returns the number of history requests received.
func (m *MockAPI) PageRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requested)
}

// FileRequestCount returns the number of recording requests received.
func (m *MockAPI) FileRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fileRequests
}

// PeakConcurrentFiles returns the most recording requests served at once.
func (m *MockAPI) PeakConcurrentFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakFiles
}

// LastQuery returns the decoded body of the most recent history request.
func (m *MockAPI) LastQuery() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// LastAuthorization returns the Authorization header of the most recent history request.
func (m *MockAPI) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func (m *MockAPI) handleHistories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var query map[string]any
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	page := 0
	if p, ok := query["page"].(float64); ok {
		page = int(p)
	}

	m.mu.Lock()
	m.requested = append(m.requested, page)
	m.lastQuery = query
	m.lastAuth = r.Header.Get("Authorization")
	resp, ok := m.pages[page]
	m.mu.Unlock()

	if !ok {
		resp = NewPageResponse(page, 0)
	}
	writeResponse(w, resp)
}

func (m *MockAPI) handleRecording(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, RecordingsPrefix)

	m.mu.Lock()
	m.fileRequests++
	m.inFlightFiles++
	if m.inFlightFiles > m.peakFiles {
		m.peakFiles = m.inFlightFiles
	}
	resp, ok := m.files[name]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlightFiles--
		m.mu.Unlock()
	}()

	if !ok {
		resp = MockResponse{StatusCode: http.StatusNotFound, Body: "not found"}
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if _, ok := resp.Headers["Content-Length"]; !ok && resp.Body != "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// PageBody renders a history page in the API's response shape.
func PageBody(currentPage, lastPage int, urls ...string) string {
	records := make([]map[string]string, 0, len(urls))
	for _, u := range urls {
		records = append(records, map[string]string{"record_file": u})
	}
	body, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"cdr_data": map[string]any{
				"current_page": currentPage,
				"last_page":    lastPage,
				"data":         records,
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("marshal page body: %v", err))
	}
	return string(body)
}

// NewPageResponse creates a 200 response carrying a history page.
func NewPageResponse(currentPage, lastPage int, urls ...string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       PageBody(currentPage, lastPage, urls...),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message": "Unauthenticated."}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewSlowResponse delays an otherwise successful page by delay.
func NewSlowResponse(currentPage, lastPage int, delay time.Duration, urls ...string) MockResponse {
	resp := NewPageResponse(currentPage, lastPage, urls...)
	resp.Delay = delay
	return resp
}
