package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/Sternrassler/rest-ingest/pkg/pagination"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// EnvPrefix marks environment variables that override document fields.
//
//	INGEST_OUTPUT_DIR             -> output_dir
//	INGEST_BASE_URL               -> base_url
//	INGEST_PAGINATION__MAX_PAGES  -> pagination.max_pages
//	INGEST_OBJECT_STORE__BUCKET   -> object_store.bucket
const EnvPrefix = "INGEST_"

// Format is a configuration document syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the document format from the file extension.
// Anything other than .yaml/.yml is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FromJSON loads the configuration document at path, applies INGEST_*
// environment overrides and resolves output_dir to an absolute path.
//
// A missing file yields an error satisfying errors.Is(err, fs.ErrNotExist),
// so callers can decide whether that is fatal.
func FromJSON(path string) (IngestConfig, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return IngestConfig{}, &ParseError{Reason: "resolve path", Err: err}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return IngestConfig{}, &ParseError{Reason: "read file", Err: err}
	}
	if info.Size() > maxConfigFileSize {
		return IngestConfig{}, &ParseError{Reason: fmt.Sprintf("file %s exceeds %d bytes", resolved, maxConfigFileSize)}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return IngestConfig{}, &ParseError{Reason: "read file", Err: err}
	}

	cfg, err := Parse(data, FormatForPath(resolved))
	if err != nil {
		return IngestConfig{}, err
	}

	if err := ApplyEnv(&cfg); err != nil {
		return IngestConfig{}, err
	}

	cfg.OutputDir, err = ResolvePath(cfg.OutputDir)
	if err != nil {
		return IngestConfig{}, &ParseError{Field: "output_dir", Reason: "cannot be resolved", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return IngestConfig{}, err
	}
	return cfg, nil
}

// Parse decodes a configuration document. It performs no I/O: environment
// overrides and path resolution are left to FromJSON.
func Parse(data []byte, format Format) (IngestConfig, error) {
	k := koanf.New(".")

	var parser koanf.Parser = kjson.Parser()
	if format == FormatYAML {
		parser = yaml.Parser()
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return IngestConfig{}, &ParseError{Reason: "malformed document", Err: err}
	}

	d := decoder{k: k}
	cfg := IngestConfig{
		BaseURL:     d.requiredString("base_url"),
		Endpoint:    d.requiredString("endpoint"),
		Headers:     d.stringMap("headers"),
		Query:       d.stringMap("query"),
		OutputDir:   d.str("output_dir"),
		UserAgent:   d.str("user_agent"),
		OnCollision: d.str("on_collision"),
		RedisAddr:   d.str("redis_addr"),
	}

	if seconds, ok := d.positiveNumber("timeout_seconds"); ok {
		cfg.Timeout = time.Duration(seconds * float64(time.Second))
	}
	if rps, ok := d.nonNegativeNumber("requests_per_second"); ok {
		cfg.RequestsPerSecond = rps
	}

	typeName := d.requiredString("pagination.type")
	if d.err == nil {
		t, err := pagination.ParseType(typeName)
		if err != nil {
			d.fail("pagination.type", "is not supported", err)
		}
		cfg.Pagination.Type = t
	}
	cfg.Pagination.PageSize = d.positiveInt("pagination.page_size")
	cfg.Pagination.MaxPages = d.positiveInt("pagination.max_pages")
	cfg.Pagination.StartPage = d.positiveInt("pagination.start_page")
	cfg.Pagination.PageParam = d.str("pagination.page_param")
	cfg.Pagination.PageSizeParam = d.str("pagination.page_size_param")
	cfg.Pagination.DataPath = d.str("pagination.data_path")
	cfg.Pagination.CursorPath = d.str("pagination.cursor_path")

	if k.Exists("object_store") {
		cfg.ObjectStore = &ObjectStoreConfig{
			EndpointURL:     d.str("object_store.endpoint_url"),
			Bucket:          d.str("object_store.bucket"),
			Prefix:          d.str("object_store.prefix"),
			AccessKeyID:     d.str("object_store.access_key_id"),
			SecretAccessKey: d.str("object_store.secret_access_key"),
			Region:          d.str("object_store.region"),
			UseSSL:          d.flag("object_store.use_ssl"),
		}
	}

	if d.err != nil {
		return IngestConfig{}, d.err
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return IngestConfig{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields of cfg from INGEST_* environment variables.
func ApplyEnv(cfg *IngestConfig) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// INGEST_PAGINATION__MAX_PAGES -> pagination.max_pages
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return &ParseError{Reason: "load environment", Err: err}
	}

	setString := func(key string, dst *string) {
		if k.Exists(key) {
			*dst = k.String(key)
		}
	}
	setInt := func(key string, dst *int) error {
		if !k.Exists(key) {
			return nil
		}
		n, err := strconv.Atoi(k.String(key))
		if err != nil || n <= 0 {
			return &ParseError{Field: key, Reason: fmt.Sprintf("must be a positive integer (env %q)", k.String(key))}
		}
		*dst = n
		return nil
	}

	setString("base_url", &cfg.BaseURL)
	setString("endpoint", &cfg.Endpoint)
	setString("output_dir", &cfg.OutputDir)
	setString("user_agent", &cfg.UserAgent)
	setString("on_collision", &cfg.OnCollision)
	setString("redis_addr", &cfg.RedisAddr)
	setString("pagination.data_path", &cfg.Pagination.DataPath)
	setString("pagination.cursor_path", &cfg.Pagination.CursorPath)

	if err := setInt("pagination.max_pages", &cfg.Pagination.MaxPages); err != nil {
		return err
	}
	if err := setInt("pagination.page_size", &cfg.Pagination.PageSize); err != nil {
		return err
	}

	if k.Exists("object_store.access_key_id") || k.Exists("object_store.secret_access_key") {
		if cfg.ObjectStore == nil {
			cfg.ObjectStore = &ObjectStoreConfig{}
		}
		setString("object_store.access_key_id", &cfg.ObjectStore.AccessKeyID)
		setString("object_store.secret_access_key", &cfg.ObjectStore.SecretAccessKey)
	}
	if cfg.ObjectStore != nil {
		setString("object_store.endpoint_url", &cfg.ObjectStore.EndpointURL)
		setString("object_store.bucket", &cfg.ObjectStore.Bucket)
	}

	return nil
}

// ResolvePath expands a leading "~" to the user's home directory and makes
// p absolute.
func ResolvePath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// decoder reads typed fields from a loaded document and keeps the first
// failure.
type decoder struct {
	k   *koanf.Koanf
	err error
}

func (d *decoder) fail(field, reason string, err error) {
	if d.err == nil {
		d.err = &ParseError{Field: field, Reason: reason, Err: err}
	}
}

func (d *decoder) str(key string) string {
	v := d.k.Get(key)
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, fmt.Sprintf("must be a string (got %T)", v), nil)
		return ""
	}
	return s
}

func (d *decoder) requiredString(key string) string {
	if !d.k.Exists(key) {
		d.fail(key, "is required", nil)
		return ""
	}
	s := d.str(key)
	if d.err == nil && strings.TrimSpace(s) == "" {
		d.fail(key, "must not be empty", nil)
	}
	return s
}

func (d *decoder) flag(key string) bool {
	v := d.k.Get(key)
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(key, fmt.Sprintf("must be a boolean (got %T)", v), nil)
	}
	return b
}

// stringMap reads a flat object of strings. Keys are taken from the raw
// document so header names containing dots survive intact.
func (d *decoder) stringMap(key string) map[string]string {
	raw, ok := d.k.Raw()[key]
	if !ok || raw == nil {
		return map[string]string{}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		d.fail(key, fmt.Sprintf("must be an object (got %T)", raw), nil)
		return nil
	}

	out := make(map[string]string, len(obj))
	for name, value := range obj {
		s, ok := value.(string)
		if !ok {
			d.fail(key+"."+name, fmt.Sprintf("must be a string (got %T)", value), nil)
			return nil
		}
		out[name] = s
	}
	return out
}

// positiveInt returns 0 for absent keys and fails for anything that is not
// a positive integer.
func (d *decoder) positiveInt(key string) int {
	v := d.k.Get(key)
	if v == nil {
		return 0
	}
	n, ok := asInt(v)
	if !ok || n <= 0 {
		d.fail(key, fmt.Sprintf("must be a positive integer (got %v)", v), nil)
		return 0
	}
	return n
}

func (d *decoder) positiveNumber(key string) (float64, bool) {
	f, ok := d.number(key)
	if ok && f <= 0 {
		d.fail(key, fmt.Sprintf("must be positive (got %v)", f), nil)
		return 0, false
	}
	return f, ok
}

func (d *decoder) nonNegativeNumber(key string) (float64, bool) {
	f, ok := d.number(key)
	if ok && f < 0 {
		d.fail(key, fmt.Sprintf("must not be negative (got %v)", f), nil)
		return 0, false
	}
	return f, ok
}

func (d *decoder) number(key string) (float64, bool) {
	v := d.k.Get(key)
	if v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		d.fail(key, fmt.Sprintf("must be a number (got %T)", v), nil)
		return 0, false
	}
}

// asInt accepts integral numbers from either parser: encoding/json yields
// float64, YAML yields int/int64/uint64.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
