package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "endpoint only",
			key:  CacheKey{Endpoint: "/api/histories/"},
			want: "cdr:api/histories",
		},
		{
			name: "params sorted",
			key: CacheKey{
				Endpoint: "api/histories",
				Params: url.Values{
					"page":            {"3"},
					"datefilter_to":   {"2024-01-02"},
					"datefilter_from": {"2024-01-01"},
				},
			},
			want: "cdr:api/histories:datefilter_from=2024-01-01:datefilter_to=2024-01-02:page=3",
		},
		{
			name: "multi-valued param joined",
			key: CacheKey{
				Endpoint: "api/histories",
				Params:   url.Values{"status_call": {"ANSWERED", "BUSY"}},
			},
			want: "cdr:api/histories:status_call=ANSWERED,BUSY",
		},
		{
			name: "empty key",
			key:  CacheKey{},
			want: "cdr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	params := url.Values{"page": {"1"}, "per_page": {"10"}, "datefilter_from": {"2024-01-01"}}
	key := CacheKey{Endpoint: "api/histories", Params: params}

	first := key.String()
	for i := 0; i < 20; i++ {
		if got := key.String(); got != first {
			t.Fatalf("String() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestCacheKey_DistinctPages(t *testing.T) {
	a := CacheKey{Endpoint: "api/histories", Params: url.Values{"page": {"1"}}}
	b := CacheKey{Endpoint: "api/histories", Params: url.Values{"page": {"2"}}}

	if a.String() == b.String() {
		t.Errorf("Different pages produced the same key %q", a.String())
	}
}
