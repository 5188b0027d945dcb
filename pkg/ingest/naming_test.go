package ingest

import (
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/items", "items"},
		{"/v2/Orders/open", "v2-orders-open"},
		{"/items/", "items"},
		{"/search?q=x", "search-q-x"},
		{"/a//b__c", "a-b-c"},
		{"/", "root"},
		{"", "root"},
		{"/ünïcode", "n-code"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			if got := Slug(tt.endpoint); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	start := time.Date(2025, 3, 1, 13, 4, 5, 0, berlin)

	got := FileName("/v2/orders", start, 17)
	if want := "v2-orders_20250301T120405Z_17.json"; got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}
