package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "cdr"

// CacheKey identifies a cached API response by endpoint and query parameters.
type CacheKey struct {
	// Endpoint is the API path (e.g., "api/histories")
	Endpoint string

	// Params are the query fields that select the response
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: cdr:endpoint:param1=val1:param2=val2
//
// Example:
//
//	cdr:api/histories:datefilter_from=2024-01-01:datefilter_to=2024-01-02:page=1
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	keys := make([]string, 0, len(k.Params))
	for key := range k.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Params[key], ",")))
	}

	return strings.Join(parts, ":")
}
