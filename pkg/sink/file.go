// Package sink persists ingest results: an atomic local JSON file plus an
// optional mirror copy in an S3-compatible bucket.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	filesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_sink_files_written_total",
		Help: "Output files committed by collision policy",
	}, []string{"policy"})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_sink_bytes_written_total",
		Help: "Bytes committed to output files",
	})

	collisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_sink_collisions_total",
		Help: "Output names found already taken, by policy",
	}, []string{"policy"})
)

// Policy decides what happens when the output name is already taken.
type Policy string

const (
	// PolicyVersion appends -1, -2, ... to the name until it is free.
	PolicyVersion Policy = "version"

	// PolicyOverwrite replaces the existing file.
	PolicyOverwrite Policy = "overwrite"

	// PolicyError refuses to replace the existing file.
	PolicyError Policy = "error"
)

// maxVersions bounds the -N suffix search under PolicyVersion.
const maxVersions = 1000

// ErrExists is returned under PolicyError when the output name is taken.
var ErrExists = errors.New("output file already exists")

// ParsePolicy validates a policy name. Empty selects PolicyVersion.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case "":
		return PolicyVersion, nil
	case PolicyVersion, PolicyOverwrite, PolicyError:
		return p, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q", name)
	}
}

// EncodeRecords renders records as one indented JSON array. A nil slice
// encodes as [].
func EncodeRecords(records []any) ([]byte, error) {
	if records == nil {
		records = []any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return buf.Bytes(), nil
}

// FileSink commits output files atomically: readers see either no file or
// the complete content.
type FileSink struct {
	policy Policy
	logger zerolog.Logger
}

// NewFileSink creates a sink with the given collision policy.
func NewFileSink(policy Policy) (*FileSink, error) {
	p, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	return &FileSink{
		policy: p,
		logger: log.With().Str("component", "sink").Logger(),
	}, nil
}

// Policy returns the collision policy.
func (s *FileSink) Policy() Policy {
	return s.policy
}

// Write stores data as dir/name and returns the path actually used, which
// differs from name only under PolicyVersion. dir is created if absent.
// On failure no file is left behind.
func (s *FileSink) Write(ctx context.Context, dir, name string, data []byte) (string, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("invalid output name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := s.writeTemp(dir, name, data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(dir, name)
	switch s.policy {
	case PolicyOverwrite:
		if err := os.Rename(tmp, target); err != nil {
			return "", fmt.Errorf("commit %s: %w", target, err)
		}
	case PolicyError:
		if err := link(tmp, target); err != nil {
			if errors.Is(err, fs.ErrExist) {
				collisionsTotal.WithLabelValues(string(s.policy)).Inc()
				return "", fmt.Errorf("%w: %s", ErrExists, target)
			}
			return "", fmt.Errorf("commit %s: %w", target, err)
		}
	default:
		target, err = s.commitVersioned(tmp, dir, name)
		if err != nil {
			return "", err
		}
	}

	filesWritten.WithLabelValues(string(s.policy)).Inc()
	bytesWritten.Add(float64(len(data)))
	s.logger.Debug().
		Str("output_path", target).
		Int("bytes", len(data)).
		Msg("Output committed")
	return target, nil
}

func (s *FileSink) commitVersioned(tmp, dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for v := 0; v <= maxVersions; v++ {
		candidate := name
		if v > 0 {
			candidate = fmt.Sprintf("%s-%d%s", base, v, ext)
		}
		target := filepath.Join(dir, candidate)

		err := link(tmp, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("commit %s: %w", target, err)
		}
		collisionsTotal.WithLabelValues(string(s.policy)).Inc()
	}
	return "", fmt.Errorf("%w: %s and %d versions", ErrExists, filepath.Join(dir, name), maxVersions)
}

func (s *FileSink) writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	fail := func(op string, err error) (string, error) {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("%s temp file: %w", op, err)
	}

	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fail("chmod", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp, nil
}

// link publishes tmp under target without replacing an existing file.
// Filesystems without hard links fall back to reserving the name with an
// exclusive create and renaming over it.
func link(tmp, target string) error {
	err := os.Link(tmp, target)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}

	f, createErr := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if createErr != nil {
		return createErr
	}
	f.Close()
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(target)
		return err
	}
	return nil
}

// Remove deletes a committed output file. A missing file is not an error.
func (s *FileSink) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
