package runstore

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies the endpoint an ingest pulls from.
type Key struct {
	// BaseURL is the API root; only its host takes part in the key.
	BaseURL string

	// Endpoint is the resource path (e.g. "/v2/orders").
	Endpoint string

	// Query are the static query parameters of the ingest.
	Query map[string]string
}

// String generates a deterministic key string.
// Format: host:endpoint:query1=val1:query2=val2
//
// Example:
//
//	api.example.com:v2/orders:status=open
func (k Key) String() string {
	var parts []string

	host := k.BaseURL
	if u, err := url.Parse(k.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if host = strings.ToLower(host); host != "" {
		parts = append(parts, host)
	}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	// sorted for determinism
	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Query[name]))
		}
	}

	return strings.Join(parts, ":")
}

// SequenceKey is the Redis key holding the filename sequence counter.
func (k Key) SequenceKey() string {
	return "ingest:seq:" + k.String()
}

// RunKey is the Redis key holding the last recorded run.
func (k Key) RunKey() string {
	return "ingest:run:" + k.String()
}
