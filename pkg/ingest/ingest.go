// Package ingest pulls every page of a REST endpoint, extracts the records
// from each response and persists them as one JSON array file per run.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/rest-ingest/pkg/client"
	"github.com/Sternrassler/rest-ingest/pkg/config"
	"github.com/Sternrassler/rest-ingest/pkg/pagination"
	"github.com/Sternrassler/rest-ingest/pkg/pathextract"
	"github.com/Sternrassler/rest-ingest/pkg/runstore"
	"github.com/Sternrassler/rest-ingest/pkg/sink"
)

// Prometheus metrics for ingest runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_runs_total",
		Help: "Total ingest runs by result",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_run_duration_seconds",
		Help:    "Duration of successful ingest runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_pages_total",
		Help: "Total pages fetched",
	})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "Total records extracted",
	})
)

// dialTimeout bounds the connectivity check of redis_addr in New.
const dialTimeout = 5 * time.Second

// defaultStore numbers output files when no Sequencer is configured. It is
// shared so ingesters in one process never hand out the same name.
var defaultStore = runstore.NewMemoryStore()

// Result is the outcome of one successful ingest.
type Result struct {
	RunID string

	// Records are the extracted records in response order. Numbers are
	// json.Number.
	Records []any

	// OutputPath is the file written inside output_dir.
	OutputPath string

	// MirrorKey is the object key of the mirrored copy, if any.
	MirrorKey string

	Pages     int
	StartedAt time.Time
	Duration  time.Duration
}

// Ingester runs ingests for one configuration.
type Ingester struct {
	cfg        config.IngestConfig
	key        runstore.Key
	client     *client.Client
	httpClient *http.Client
	sink       *sink.FileSink
	seq        runstore.Sequencer
	ledger     runstore.Ledger
	mirror     *sink.Mirror
	owned      *runstore.RedisStore
	now        func() time.Time
	logger     zerolog.Logger
}

// New validates cfg and builds an Ingester. cfg is copied; later changes to
// the caller's value do not affect the ingester.
func New(cfg config.IngestConfig, opts ...Option) (*Ingester, error) {
	cfg = copyConfig(cfg).WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	i := &Ingester{
		cfg: cfg,
		key: runstore.Key{
			BaseURL:  cfg.BaseURL,
			Endpoint: cfg.Endpoint,
			Query:    cfg.Query,
		},
		now:    time.Now,
		logger: log.With().Str("component", "ingest").Logger(),
	}

	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}

	c, err := client.New(client.Config{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             1,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if i.httpClient != nil {
		c.SetHTTPClient(i.httpClient)
	}
	c.SetLogger(i.logger.With().Str("component", "http-client").Logger())
	i.client = c

	i.sink, err = sink.NewFileSink(sink.Policy(cfg.OnCollision))
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" && (i.seq == nil || i.ledger == nil) {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		store, err := runstore.Dial(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis_addr: %w", err)
		}
		i.owned = store
		if i.seq == nil {
			i.seq = store
		}
		if i.ledger == nil {
			i.ledger = store
		}
	}
	if i.seq == nil {
		i.seq = defaultStore
	}

	if i.mirror == nil && cfg.ObjectStore != nil {
		store, err := sink.NewMinioStore(sink.MinioConfig{
			EndpointURL:     cfg.ObjectStore.EndpointURL,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			Region:          cfg.ObjectStore.Region,
			UseSSL:          cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			i.Close()
			return nil, fmt.Errorf("object store: %w", err)
		}
		i.mirror, err = sink.NewMirror(store, cfg.ObjectStore.Bucket, cfg.ObjectStore.Prefix)
		if err != nil {
			i.Close()
			return nil, fmt.Errorf("object store: %w", err)
		}
	}

	return i, nil
}

// Close releases the Redis connection New opened for redis_addr. Stores
// passed in through options are left to their owner.
func (i *Ingester) Close() error {
	if i.owned == nil {
		return nil
	}
	err := i.owned.Close()
	i.owned = nil
	return err
}

// Config returns the ingester's configuration with defaults applied.
func (i *Ingester) Config() config.IngestConfig {
	return copyConfig(i.cfg)
}

// Key returns the run store key of the configured endpoint.
func (i *Ingester) Key() runstore.Key {
	return i.key
}

// Ingest fetches all pages, then writes the records to one file. Any failure
// aborts the run and leaves no output file behind.
func (i *Ingester) Ingest(ctx context.Context) (*Result, error) {
	started := i.now()
	runID := uuid.NewString()
	logger := i.logger.With().
		Str("run_id", runID).
		Str("endpoint", i.cfg.Endpoint).
		Logger()

	result, err := i.run(ctx, logger, runID, started)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("Ingest failed")
		return nil, err
	}

	runsTotal.WithLabelValues("ok").Inc()
	runDuration.Observe(result.Duration.Seconds())
	logger.Info().
		Int("pages", result.Pages).
		Int("records", len(result.Records)).
		Str("output_path", result.OutputPath).
		Dur("duration", result.Duration).
		Msg("Ingest complete")
	return result, nil
}

func (i *Ingester) run(ctx context.Context, logger zerolog.Logger, runID string, started time.Time) (*Result, error) {
	strategy, err := pagination.NewStrategy(i.cfg.Pagination)
	if err != nil {
		return nil, err
	}
	state := pagination.NewState(i.cfg.Pagination)
	records := []any{}

	logger.Info().
		Str("url", i.cfg.URL()).
		Str("pagination", string(strategy.Type())).
		Str("on_collision", string(i.sink.Policy())).
		Msg("Ingest started")

	for {
		page := state.PagesFetched + 1
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		body, err := i.fetchPage(ctx, page, strategy.Params(state))
		if err != nil {
			return nil, err
		}

		pageRecords, err := pathextract.Records(body, i.cfg.Pagination.DataPath)
		if err != nil {
			return nil, &ExtractionError{Page: page, Path: i.cfg.Pagination.DataPath, Err: err}
		}

		records = append(records, pageRecords...)
		state.Record(len(pageRecords))
		pagesTotal.Inc()
		recordsTotal.Add(float64(len(pageRecords)))

		logger.Debug().
			Int("page", page).
			Int("records", len(pageRecords)).
			Int("total_records", state.RecordsFetched).
			Msg("Page fetched")

		if !strategy.Continue(state, len(pageRecords), body) {
			break
		}
		strategy.Advance(state, body)
	}

	path, mirrorKey, err := i.persist(ctx, records, started)
	if err != nil {
		return nil, err
	}

	finished := i.now()
	result := &Result{
		RunID:      runID,
		Records:    records,
		OutputPath: path,
		MirrorKey:  mirrorKey,
		Pages:      state.PagesFetched,
		StartedAt:  started,
		Duration:   finished.Sub(started),
	}

	if i.ledger != nil {
		run := runstore.Run{
			ID:         runID,
			Key:        i.key.String(),
			URL:        i.cfg.URL(),
			Pages:      result.Pages,
			Records:    len(records),
			OutputPath: path,
			MirrorKey:  mirrorKey,
			StartedAt:  started.UTC(),
			FinishedAt: finished.UTC(),
		}
		// the artifact is complete; a ledger outage must not discard it
		if err := i.ledger.Record(ctx, i.key, run); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run")
		}
	}

	return result, nil
}

// fetchPage issues one request and decodes its body.
func (i *Ingester) fetchPage(ctx context.Context, page int, params url.Values) (any, error) {
	query := url.Values{}
	for name, value := range i.cfg.Query {
		query.Set(name, value)
	}
	// pagination parameters win over static ones
	for name, values := range params {
		query[name] = values
	}

	reqURL := i.cfg.URL()
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	resp, err := i.client.Get(ctx, i.cfg.URL(), query, i.cfg.Headers)
	if err != nil {
		return nil, getError(page, reqURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Page:       page,
			StatusCode: resp.StatusCode,
			URL:        resp.URL,
			Body:       snippet(resp.Body),
		}
	}

	body, err := decodeJSON(resp.Body)
	if err != nil {
		return nil, &ParseError{Page: page, URL: resp.URL, Err: err}
	}
	return body, nil
}

// getError wraps a transport failure as *FetchError. Anything else from the
// client (a malformed request) is returned as is, unclassified.
func getError(page int, reqURL string, err error) error {
	var reqErr *client.RequestError
	if !errors.As(err, &reqErr) {
		return fmt.Errorf("page %d: %w", page, err)
	}
	return &FetchError{Page: page, URL: reqURL, Err: reqErr.Err}
}

// persist writes the output file and, when configured, its mirror copy.
func (i *Ingester) persist(ctx context.Context, records []any, started time.Time) (string, string, error) {
	data, err := sink.EncodeRecords(records)
	if err != nil {
		return "", "", err
	}

	seq, err := i.seq.Next(ctx, i.key)
	if err != nil {
		return "", "", fmt.Errorf("allocate file sequence: %w", err)
	}

	path, err := i.sink.Write(ctx, i.cfg.OutputDir, FileName(i.cfg.Endpoint, started, seq), data)
	if err != nil {
		return "", "", fmt.Errorf("write output: %w", err)
	}

	if i.mirror == nil {
		return path, "", nil
	}

	key, err := i.mirror.Upload(ctx, filepath.Base(path), data)
	if err != nil {
		if rmErr := i.sink.Remove(path); rmErr != nil {
			i.logger.Warn().Err(rmErr).Str("output_path", path).Msg("Failed to remove output after mirror failure")
		}
		return "", "", err
	}
	return path, key, nil
}

// decodeJSON parses exactly one JSON document, keeping numbers as
// json.Number.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty body")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON document at offset %d", dec.InputOffset())
	}
	return v, nil
}

func copyConfig(cfg config.IngestConfig) config.IngestConfig {
	cfg.Headers = maps.Clone(cfg.Headers)
	cfg.Query = maps.Clone(cfg.Query)
	if cfg.ObjectStore != nil {
		store := *cfg.ObjectStore
		cfg.ObjectStore = &store
	}
	return cfg
}
