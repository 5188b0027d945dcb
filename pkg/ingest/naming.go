package ingest

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is the UTC timestamp embedded in output file names.
const timestampLayout = "20060102T150405Z"

// Slug turns an endpoint path into a file name fragment:
// "/v2/Orders/open" becomes "v2-orders-open". An empty path yields "root".
func Slug(endpoint string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(endpoint) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "root"
	}
	return slug
}

// FileName is the output name for a run started at t with sequence seq.
func FileName(endpoint string, t time.Time, seq int64) string {
	return fmt.Sprintf("%s_%s_%d.json", Slug(endpoint), t.UTC().Format(timestampLayout), seq)
}
