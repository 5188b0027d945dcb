package pathextract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestExtract_EmptyPathIsIdentity(t *testing.T) {
	inputs := []string{
		`[{"id":1},{"id":2}]`,
		`{"data":{"items":[]}}`,
		`"text"`,
		`42`,
		`null`,
		`true`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			v := decode(t, in)
			got, err := Extract(v, "")
			require.NoError(t, err)
			assert.Equal(t, v, got)
		})
	}
}

func TestExtract(t *testing.T) {
	body := `{
		"data": {
			"items": [{"id": 1}, {"id": 2}],
			"meta": {"next": "abc"}
		},
		"results": [{"rows": [{"x": 1}]}]
	}`

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "nested object", path: "data.meta", want: `{"next":"abc"}`},
		{name: "nested array", path: "data.items", want: `[{"id":1},{"id":2}]`},
		{name: "array index", path: "data.items.1", want: `{"id":2}`},
		{name: "index then key", path: "results.0.rows", want: `[{"x":1}]`},
		{name: "scalar leaf", path: "data.meta.next", want: `"abc"`},
	}

	v := decode(t, body)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(v, tt.path)
			require.NoError(t, err)
			assert.Equal(t, decode(t, tt.want), got)
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	body := `{"data": {"items": [1, 2], "name": "x", "empty": null}}`

	tests := []struct {
		name    string
		path    string
		segment string
	}{
		{name: "missing key", path: "data.missing", segment: "missing"},
		{name: "missing root key", path: "nope", segment: "nope"},
		{name: "index into string", path: "data.name.first", segment: "first"},
		{name: "index into number", path: "data.items.0.id", segment: "id"},
		{name: "index into null", path: "data.empty.x", segment: "x"},
		{name: "non-numeric array index", path: "data.items.first", segment: "first"},
		{name: "array index out of range", path: "data.items.2", segment: "2"},
		{name: "negative array index", path: "data.items.-1", segment: "-1"},
		{name: "empty segment", path: "data..items", segment: ""},
	}

	v := decode(t, body)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(v, tt.path)
			require.Error(t, err)

			var extractErr *Error
			require.True(t, errors.As(err, &extractErr), "want *Error, got %T", err)
			assert.Equal(t, tt.path, extractErr.Path)
			assert.Equal(t, tt.segment, extractErr.Segment)
		})
	}
}

func TestRecords(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		path    string
		want    int
		wantErr bool
	}{
		{name: "top level array", body: `[{"id":1},{"id":2}]`, path: "", want: 2},
		{name: "empty array", body: `[]`, path: "", want: 0},
		{name: "nested array", body: `{"data":{"items":[1,2,3]}}`, path: "data.items", want: 3},
		{name: "object is one record", body: `{"data":{"id":7}}`, path: "data", want: 1},
		{name: "string is not enumerable", body: `{"data":"x"}`, path: "data", wantErr: true},
		{name: "number is not enumerable", body: `{"data":3}`, path: "data", wantErr: true},
		{name: "null is not enumerable", body: `{"data":null}`, path: "data", wantErr: true},
		{name: "missing path", body: `{"data":[]}`, path: "items", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Records(decode(t, tt.body), tt.path)
			if tt.wantErr {
				var extractErr *Error
				assert.True(t, errors.As(err, &extractErr), "want *Error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestRecords_PreservesOrder(t *testing.T) {
	got, err := Records(decode(t, `{"items":[{"id":3},{"id":1},{"id":2}]}`), "items")
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, want := range []string{"3", "1", "2"} {
		rec := got[i].(map[string]any)
		assert.Equal(t, json.Number(want), rec["id"])
	}
}

func TestLookup(t *testing.T) {
	v := decode(t, `{"meta":{"next":"abc","done":null}}`)

	got, ok := Lookup(v, "meta.next")
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	_, ok = Lookup(v, "meta.done")
	assert.False(t, ok, "null should count as absent")

	_, ok = Lookup(v, "meta.missing")
	assert.False(t, ok)
}

func TestError_Message(t *testing.T) {
	err := &Error{Path: "a.b", Segment: "b", Reason: "key not found"}
	assert.Equal(t, `extract "a.b" at segment "b": key not found`, err.Error())

	err = &Error{Path: "a", Reason: "resolved to string, want array or object"}
	assert.Equal(t, `extract "a": resolved to string, want array or object`, err.Error())
}
