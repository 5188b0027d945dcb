// Package runstore keeps per-endpoint filename sequences and a ledger of the
// last successful run, in memory or in Redis.
package runstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrNoRun indicates no run has been recorded for a key.
	ErrNoRun = errors.New("no run recorded")

	// ErrInvalidRun indicates a stored run could not be decoded.
	ErrInvalidRun = errors.New("invalid run record")
)

var (
	// storeErrors tracks run store operation errors
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runstore_errors_total",
			Help: "Total number of run store operation errors",
		},
		[]string{"operation"}, // "next", "record", "last"
	)

	// runsRecorded tracks ledger writes by backend
	runsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_recorded_total",
			Help: "Total number of runs written to the ledger",
		},
		[]string{"backend"}, // "memory", "redis"
	)
)

// Run is a ledger entry for one successful ingest.
type Run struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	OutputPath string    `json:"output_path"`
	MirrorKey  string    `json:"mirror_key,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Sequencer hands out increasing numbers per key, starting at 1.
type Sequencer interface {
	Next(ctx context.Context, key Key) (int64, error)
}

// Ledger records the last successful run per key.
type Ledger interface {
	Record(ctx context.Context, key Key, run Run) error
	Last(ctx context.Context, key Key) (*Run, error)
}

// MemoryStore is a process-local Sequencer and Ledger.
type MemoryStore struct {
	mu   sync.Mutex
	seqs map[string]int64
	runs map[string]Run
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seqs: make(map[string]int64),
		runs: make(map[string]Run),
	}
}

func (m *MemoryStore) Next(ctx context.Context, key Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.SequenceKey()
	m.seqs[k]++
	return m.seqs[k], nil
}

func (m *MemoryStore) Record(ctx context.Context, key Key, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[key.RunKey()] = run
	runsRecorded.WithLabelValues("memory").Inc()
	return nil
}

func (m *MemoryStore) Last(ctx context.Context, key Key) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[key.RunKey()]
	if !ok {
		return nil, ErrNoRun
	}
	return &run, nil
}
