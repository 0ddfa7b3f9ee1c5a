package history

import (
	"errors"
	"time"
)

// DateLayout is the date format used by the API and the CLI.
const DateLayout = "2006-01-02"

// ErrMalformedPage is returned when a response lacks the expected structure.
var ErrMalformedPage = errors.New("malformed history page")

// PageRequest identifies one page of the history query.
type PageRequest struct {
	StartDate time.Time
	EndDate   time.Time
	Page      int
}

// RecordRef points at one remote recording.
type RecordRef struct {
	FileURL string
}

// PageResult is the outcome of fetching one page. Err is nil on success.
type PageResult struct {
	Request     PageRequest
	Records     []RecordRef
	CurrentPage int
	LastPage    int
	Err         error
}

// Failed reports whether the fetch failed.
func (r PageResult) Failed() bool {
	return r.Err != nil
}

// URLs returns the record file URLs in response order.
func (r PageResult) URLs() []string {
	urls := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		urls = append(urls, rec.FileURL)
	}
	return urls
}

// historyQuery is the JSON body of a history request.
type historyQuery struct {
	DateFrom     string `json:"datefilter_from"`
	DateTo       string `json:"datefilter_to"`
	TypeDuration string `json:"typeDuration"`
	Page         int    `json:"page"`
	PerPage      int    `json:"per_page"`
	Search       string `json:"search"`
	StatusCall   string `json:"status_call"`
}

// historyResponse mirrors {data:{cdr_data:{current_page,last_page,data:[...]}}}.
// Pointers distinguish absent objects from empty ones.
type historyResponse struct {
	Data *struct {
		CDRData *cdrData `json:"cdr_data"`
	} `json:"data"`
}

type cdrData struct {
	CurrentPage int          `json:"current_page"`
	LastPage    *int         `json:"last_page"`
	Data        *[]cdrRecord `json:"data"`
}

type cdrRecord struct {
	RecordFile string `json:"record_file"`
}
