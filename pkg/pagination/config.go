package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies a pagination style.
type Type string

const (
	// TypePageNumber sends a 1-based page counter.
	TypePageNumber Type = "PAGE_NUMBER"

	// TypeOffset sends a running record offset.
	TypeOffset Type = "OFFSET"

	// TypeCursor sends the opaque cursor returned by the previous response.
	TypeCursor Type = "CURSOR"

	// TypeNone issues a single request.
	TypeNone Type = "NONE"
)

// DefaultPageSize is used when Config.PageSize is unset.
const DefaultPageSize = 100

// DefaultCursorPath is where CURSOR pagination looks for the next cursor
// when Config.CursorPath is unset.
const DefaultCursorPath = "next_cursor"

// ErrUnknownType is returned for pagination type names outside the supported set.
var ErrUnknownType = errors.New("unknown pagination type")

// Types lists the supported pagination styles.
func Types() []Type {
	return []Type{TypePageNumber, TypeOffset, TypeCursor, TypeNone}
}

// Valid reports whether t is one of the supported styles, exactly as spelled
// by the constants.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType matches name against the supported types, ignoring case and
// surrounding whitespace.
func ParseType(name string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(name)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Config describes how an endpoint paginates.
type Config struct {
	// Type selects the pagination style.
	Type Type

	// PageSize is the number of records requested per page.
	PageSize int

	// PageParam is the query parameter carrying the page index, offset or
	// cursor depending on Type.
	PageParam string

	// PageSizeParam is the query parameter carrying PageSize.
	PageSizeParam string

	// DataPath locates the record array in a response body.
	// Empty means the body itself is the array.
	DataPath string

	// MaxPages caps the number of requests. 0 means unbounded.
	MaxPages int

	// CursorPath locates the next cursor in a response body (CURSOR only).
	CursorPath string

	// StartPage is the first page index (PAGE_NUMBER only).
	StartPage int
}

// DefaultConfig returns the conventional parameter names for t.
func DefaultConfig(t Type) Config {
	return Config{Type: t}.WithDefaults()
}

// WithDefaults fills unset fields with the conventional values for c.Type.
func (c Config) WithDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}

	switch c.Type {
	case TypePageNumber:
		if c.PageParam == "" {
			c.PageParam = "page"
		}
		if c.PageSizeParam == "" {
			c.PageSizeParam = "page_size"
		}
		if c.StartPage == 0 {
			c.StartPage = 1
		}
	case TypeOffset:
		if c.PageParam == "" {
			c.PageParam = "offset"
		}
		if c.PageSizeParam == "" {
			c.PageSizeParam = "limit"
		}
	case TypeCursor:
		if c.PageParam == "" {
			c.PageParam = "cursor"
		}
		if c.PageSizeParam == "" {
			c.PageSizeParam = "limit"
		}
		if c.CursorPath == "" {
			c.CursorPath = DefaultCursorPath
		}
	}

	return c
}

// Validate checks that c describes a usable pagination style.
func (c Config) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be a positive integer (got %d)", c.PageSize)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must be a positive integer (got %d)", c.MaxPages)
	}
	if c.Type == TypePageNumber && c.StartPage < 0 {
		return fmt.Errorf("start_page must not be negative (got %d)", c.StartPage)
	}
	if c.Type != TypeNone && (c.PageParam == "" || c.PageSizeParam == "") {
		return fmt.Errorf("page_param and page_size_param are required for %s", c.Type)
	}
	return nil
}
