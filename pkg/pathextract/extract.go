// Package pathextract resolves dotted paths into decoded JSON values.
//
// A path such as "data.items" walks object keys in order. When the current
// value is an array, a numeric segment selects an element by position, so
// "results.0.rows" is valid against {"results": [{"rows": [...]}]}.
// The empty path addresses the value itself.
package pathextract

import (
	"fmt"
	"strconv"
	"strings"
)

// Error reports a path that does not resolve against a value.
type Error struct {
	// Path is the full dotted path that was requested.
	Path string

	// Segment is the segment at which resolution failed.
	Segment string

	// Reason describes the failure.
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("extract %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("extract %q at segment %q: %s", e.Path, e.Segment, e.Reason)
}

// Extract returns the value reachable from value by following path.
func Extract(value any, path string) (any, error) {
	if path == "" {
		return value, nil
	}

	current := value
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, &Error{Path: path, Reason: "empty segment"}
		}

		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, &Error{Path: path, Segment: segment, Reason: "key not found"}
			}
			current = next

		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil {
				return nil, &Error{Path: path, Segment: segment, Reason: "array index is not an integer"}
			}
			if idx < 0 || idx >= len(node) {
				return nil, &Error{
					Path:    path,
					Segment: segment,
					Reason:  fmt.Sprintf("index out of range (len %d)", len(node)),
				}
			}
			current = node[idx]

		default:
			return nil, &Error{
				Path:    path,
				Segment: segment,
				Reason:  fmt.Sprintf("cannot index into %s", kindOf(current)),
			}
		}
	}

	return current, nil
}

// Records resolves path and returns the records found there.
// An array yields its elements in order and an object yields itself as a
// single record. Scalars and null are not enumerable and return an *Error.
func Records(value any, path string) ([]any, error) {
	resolved, err := Extract(value, path)
	if err != nil {
		return nil, err
	}

	switch v := resolved.(type) {
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	default:
		return nil, &Error{
			Path:   path,
			Reason: fmt.Sprintf("resolved to %s, want array or object", kindOf(resolved)),
		}
	}
}

// Lookup is Extract for optional fields. The boolean is false when the path
// does not resolve or resolves to null.
func Lookup(value any, path string) (any, bool) {
	v, err := Extract(value, path)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		return "number"
	}
}
