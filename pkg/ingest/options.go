package ingest

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/rest-ingest/pkg/runstore"
	"github.com/Sternrassler/rest-ingest/pkg/sink"
)

// Option configures an Ingester.
type Option func(*Ingester) error

// WithLogger sets the logger. Default is the global logger with
// component=ingest.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Ingester) error {
		i.logger = logger
		return nil
	}
}

// WithHTTPClient replaces the transport used for page requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(i *Ingester) error {
		if httpClient == nil {
			return errors.New("http client cannot be nil")
		}
		i.httpClient = httpClient
		return nil
	}
}

// WithSequencer sets the filename sequence source. Default is a
// process-wide in-memory counter, or Redis when redis_addr is configured.
func WithSequencer(seq runstore.Sequencer) Option {
	return func(i *Ingester) error {
		if seq == nil {
			return errors.New("sequencer cannot be nil")
		}
		i.seq = seq
		return nil
	}
}

// WithLedger records every successful run. Default is no ledger, or Redis
// when redis_addr is configured.
func WithLedger(ledger runstore.Ledger) Option {
	return func(i *Ingester) error {
		i.ledger = ledger
		return nil
	}
}

// WithMirror copies each output file to an object store. Default is built
// from the object_store config section, if any.
func WithMirror(mirror *sink.Mirror) Option {
	return func(i *Ingester) error {
		i.mirror = mirror
		return nil
	}
}

// WithClock sets the time source used for file names and durations.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		i.now = now
		return nil
	}
}
