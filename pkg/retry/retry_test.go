package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/rest-ingest/pkg/client"
)

type classErr struct {
	class client.ErrorClass
}

func (e *classErr) Error() string                 { return "failed: " + string(e.class) }
func (e *classErr) ErrorClass() client.ErrorClass { return e.class }

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestConfigForErrorClass(t *testing.T) {
	base := DefaultConfig()

	tests := []struct {
		name            string
		errorClass      client.ErrorClass
		expectedInitial time.Duration
		expectedMax     time.Duration
	}{
		{"server error keeps base", client.ErrorClassServer, 1 * time.Second, 30 * time.Second},
		{"rate limit backs off longer", client.ErrorClassRateLimit, 5 * time.Second, 60 * time.Second},
		{"network error", client.ErrorClassNetwork, 2 * time.Second, 30 * time.Second},
		{"unknown class keeps base", "", 1 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ConfigForErrorClass(base, tt.errorClass)
			if cfg.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", cfg.InitialBackoff, tt.expectedInitial)
			}
			if cfg.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", cfg.MaxBackoff, tt.expectedMax)
			}
			if cfg.MaxAttempts != base.MaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, base.MaxAttempts)
			}
		})
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &classErr{class: client.ErrorClassServer}
		}
		return nil
	})
	if err != nil {
		t.Errorf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_NonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client class", &classErr{class: client.ErrorClassClient}},
		{"unclassified", errors.New("extraction failed")},
		{"cancelled", fmt.Errorf("fetch: %w", context.Canceled)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
				calls++
				return tt.err
			})
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if err != tt.err {
				t.Errorf("Do() error = %v, want the original error", err)
			}
		})
	}
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	cause := &classErr{class: client.ErrorClassNetwork}
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return cause
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("error = %v, want ErrExhausted", err)
	}
	var target *classErr
	if !errors.As(err, &target) {
		t.Errorf("error = %v, want to wrap the last failure", err)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiplier: 1}
	calls := 0
	start := time.Now()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		cancel()
		return &classErr{class: client.ErrorClassServer}
	})

	if !errors.Is(err, ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Do() waited out the backoff instead of returning on cancel")
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Config{}, func(ctx context.Context) error {
		calls++
		return &classErr{class: client.ErrorClassServer}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClassOf(t *testing.T) {
	wrapped := fmt.Errorf("page 2: %w", &client.RequestError{URL: "http://x", Class: client.ErrorClassNetwork, Err: errors.New("eof")})
	if got := ClassOf(wrapped); got != client.ErrorClassNetwork {
		t.Errorf("ClassOf(wrapped RequestError) = %q", got)
	}
	if got := ClassOf(errors.New("plain")); got != "" {
		t.Errorf("ClassOf(plain) = %q, want empty", got)
	}
	if !Retryable(wrapped) {
		t.Error("network errors should be retryable")
	}
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
}
