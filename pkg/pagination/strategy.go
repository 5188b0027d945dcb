package pagination

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/rest-ingest/pkg/pathextract"
)

// State is the cursor of one ingest run.
type State struct {
	// Page is the current page index (PAGE_NUMBER).
	Page int

	// Offset is the current record offset (OFFSET).
	Offset int

	// Cursor is the token for the next request (CURSOR). Empty before the
	// first response.
	Cursor string

	// PagesFetched counts completed requests.
	PagesFetched int

	// RecordsFetched counts records extracted so far.
	RecordsFetched int
}

// NewState returns the initial state for cfg.
func NewState(cfg Config) *State {
	cfg = cfg.WithDefaults()
	return &State{Page: cfg.StartPage}
}

// Record accounts for one fetched page holding n records.
func (s *State) Record(n int) {
	s.PagesFetched++
	s.RecordsFetched += n
}

// Strategy computes request parameters and decides termination.
type Strategy interface {
	// Type returns the pagination style.
	Type() Type

	// Params returns the pagination query parameters for the next request.
	Params(s *State) url.Values

	// Continue reports whether another request should follow the page just
	// recorded in s, which yielded pageRecords records and decoded to body.
	Continue(s *State, pageRecords int, body any) bool

	// Advance moves s to the next request. Only called after Continue
	// returned true.
	Advance(s *State, body any)
}

// NewStrategy returns the Strategy for cfg.Type.
func NewStrategy(cfg Config) (Strategy, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case TypePageNumber:
		return &pageNumberStrategy{cfg: cfg}, nil
	case TypeOffset:
		return &offsetStrategy{cfg: cfg}, nil
	case TypeCursor:
		return &cursorStrategy{cfg: cfg}, nil
	case TypeNone:
		return noneStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}

// exhausted holds the stop rule shared by every counting style.
func exhausted(cfg Config, s *State, pageRecords int) bool {
	if pageRecords == 0 {
		return true
	}
	return cfg.MaxPages > 0 && s.PagesFetched >= cfg.MaxPages
}

type pageNumberStrategy struct {
	cfg Config
}

func (p *pageNumberStrategy) Type() Type { return TypePageNumber }

func (p *pageNumberStrategy) Params(s *State) url.Values {
	v := url.Values{}
	v.Set(p.cfg.PageParam, strconv.Itoa(s.Page))
	v.Set(p.cfg.PageSizeParam, strconv.Itoa(p.cfg.PageSize))
	return v
}

func (p *pageNumberStrategy) Continue(s *State, pageRecords int, _ any) bool {
	return !exhausted(p.cfg, s, pageRecords)
}

func (p *pageNumberStrategy) Advance(s *State, _ any) {
	s.Page++
}

type offsetStrategy struct {
	cfg Config
}

func (o *offsetStrategy) Type() Type { return TypeOffset }

func (o *offsetStrategy) Params(s *State) url.Values {
	v := url.Values{}
	v.Set(o.cfg.PageParam, strconv.Itoa(s.Offset))
	v.Set(o.cfg.PageSizeParam, strconv.Itoa(o.cfg.PageSize))
	return v
}

func (o *offsetStrategy) Continue(s *State, pageRecords int, _ any) bool {
	return !exhausted(o.cfg, s, pageRecords)
}

func (o *offsetStrategy) Advance(s *State, _ any) {
	s.Offset = s.PagesFetched * o.cfg.PageSize
}

type cursorStrategy struct {
	cfg Config
}

func (c *cursorStrategy) Type() Type { return TypeCursor }

func (c *cursorStrategy) Params(s *State) url.Values {
	v := url.Values{}
	v.Set(c.cfg.PageSizeParam, strconv.Itoa(c.cfg.PageSize))
	if s.Cursor != "" {
		v.Set(c.cfg.PageParam, s.Cursor)
	}
	return v
}

func (c *cursorStrategy) Continue(s *State, pageRecords int, body any) bool {
	if exhausted(c.cfg, s, pageRecords) {
		return false
	}
	next, ok := c.nextCursor(body)
	// a repeated cursor would request the same page again
	return ok && next != s.Cursor
}

func (c *cursorStrategy) Advance(s *State, body any) {
	if next, ok := c.nextCursor(body); ok {
		s.Cursor = next
	}
}

func (c *cursorStrategy) nextCursor(body any) (string, bool) {
	raw, ok := pathextract.Lookup(body, c.cfg.CursorPath)
	if !ok {
		return "", false
	}

	var token string
	switch v := raw.(type) {
	case string:
		token = v
	case json.Number:
		token = v.String()
	case float64:
		token = strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any, bool:
		return "", false
	default:
		token = fmt.Sprint(v)
	}
	return token, token != ""
}

type noneStrategy struct{}

func (noneStrategy) Type() Type { return TypeNone }

func (noneStrategy) Params(*State) url.Values { return url.Values{} }

func (noneStrategy) Continue(*State, int, any) bool { return false }

func (noneStrategy) Advance(*State, any) {}
