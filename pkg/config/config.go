// Package config defines the ingest configuration and loads it from JSON or
// YAML documents.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/rest-ingest/pkg/pagination"
)

// Collision policies for output files whose name is already taken.
const (
	OnCollisionVersion   = "version"
	OnCollisionOverwrite = "overwrite"
	OnCollisionError     = "error"
)

// Defaults applied to fields the document leaves unset.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "rest-ingest/1.0"
	DefaultOutputDir = "output"
)

// IngestConfig describes one REST API ingest.
type IngestConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string

	// Endpoint is the resource path with a leading slash, e.g. "/items".
	Endpoint string

	// Headers are sent with every request.
	Headers map[string]string

	// Query holds static query parameters sent with every request.
	// Pagination parameters take precedence on conflict.
	Query map[string]string

	// Pagination describes how the endpoint pages its results.
	Pagination pagination.Config

	// OutputDir receives the output file. Created if absent.
	OutputDir string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// UserAgent is sent as the User-Agent header unless Headers overrides it.
	UserAgent string

	// RequestsPerSecond paces requests. 0 disables pacing.
	RequestsPerSecond float64

	// OnCollision selects what happens when the output name already exists.
	OnCollision string

	// ObjectStore, when set, mirrors the output file to a bucket.
	ObjectStore *ObjectStoreConfig

	// RedisAddr, when set, keeps filename sequences and the run ledger in Redis.
	RedisAddr string
}

// ObjectStoreConfig locates an S3-compatible bucket.
type ObjectStoreConfig struct {
	EndpointURL     string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// URL returns the request URL without query parameters.
func (c IngestConfig) URL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + c.Endpoint
}

// WithDefaults returns c with unset optional fields filled in.
func (c IngestConfig) WithDefaults() IngestConfig {
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	if c.Query == nil {
		c.Query = map[string]string{}
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.OnCollision == "" {
		c.OnCollision = OnCollisionVersion
	}
	c.Pagination = c.Pagination.WithDefaults()
	return c
}

// Validate checks the invariants the ingester relies on.
func (c IngestConfig) Validate() error {
	if c.BaseURL == "" {
		return &ParseError{Field: "base_url", Reason: "is required"}
	}
	if c.Endpoint == "" {
		return &ParseError{Field: "endpoint", Reason: "is required"}
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return &ParseError{Field: "endpoint", Reason: fmt.Sprintf("must start with '/' (got %q)", c.Endpoint)}
	}

	u, err := url.Parse(c.URL())
	if err != nil {
		return &ParseError{Field: "base_url", Reason: "does not form a valid URL with endpoint", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ParseError{Field: "base_url", Reason: fmt.Sprintf("scheme must be http or https (got %q)", u.Scheme)}
	}
	if u.Host == "" {
		return &ParseError{Field: "base_url", Reason: "has no host"}
	}

	if err := c.Pagination.Validate(); err != nil {
		return &ParseError{Field: "pagination", Reason: "is invalid", Err: err}
	}
	if c.Timeout < 0 {
		return &ParseError{Field: "timeout_seconds", Reason: "must be positive"}
	}
	if c.RequestsPerSecond < 0 {
		return &ParseError{Field: "requests_per_second", Reason: "must not be negative"}
	}

	switch c.OnCollision {
	case OnCollisionVersion, OnCollisionOverwrite, OnCollisionError:
	default:
		return &ParseError{Field: "on_collision", Reason: fmt.Sprintf("unsupported policy %q", c.OnCollision)}
	}

	if c.ObjectStore != nil {
		if c.ObjectStore.EndpointURL == "" {
			return &ParseError{Field: "object_store.endpoint_url", Reason: "is required"}
		}
		if c.ObjectStore.Bucket == "" {
			return &ParseError{Field: "object_store.bucket", Reason: "is required"}
		}
	}

	return nil
}
