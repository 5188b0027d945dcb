package runstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis, skipping the test when none is
// running. Integration tests use testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

var (
	itemsKey  = Key{BaseURL: "https://api.example.com", Endpoint: "/items"}
	ordersKey = Key{BaseURL: "https://api.example.com", Endpoint: "/orders"}
)

func sampleRun(id string) Run {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return Run{
		ID:         id,
		Key:        itemsKey.String(),
		URL:        "https://api.example.com/items",
		Pages:      2,
		Records:    3,
		OutputPath: "/data/items_20250301T120000Z_1.json",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
}

type backend interface {
	Sequencer
	Ledger
}

// stores returns the backends under test; Redis only when a local server
// answers.
func stores(t *testing.T) map[string]backend {
	t.Helper()

	out := map[string]backend{"memory": NewMemoryStore()}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Logf("Redis not available, testing memory store only: %v", err)
		return out
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	out["redis"] = NewRedisStore(client, time.Minute)
	return out
}

func TestStore_SequencePerKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for want := int64(1); want <= 3; want++ {
				got, err := store.Next(ctx, itemsKey)
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				if got != want {
					t.Errorf("Next() = %d, want %d", got, want)
				}
			}

			got, err := store.Next(ctx, ordersKey)
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if got != 1 {
				t.Errorf("Next(orders) = %d, want 1", got)
			}
		})
	}
}

func TestStore_Ledger(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Last(ctx, itemsKey); !errors.Is(err, ErrNoRun) {
				t.Fatalf("Last() on empty store error = %v, want ErrNoRun", err)
			}

			if err := store.Record(ctx, itemsKey, sampleRun("run-1")); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			if err := store.Record(ctx, itemsKey, sampleRun("run-2")); err != nil {
				t.Fatalf("Record() error = %v", err)
			}

			last, err := store.Last(ctx, itemsKey)
			if err != nil {
				t.Fatalf("Last() error = %v", err)
			}
			want := sampleRun("run-2")
			if last.ID != want.ID || last.Records != want.Records || last.OutputPath != want.OutputPath {
				t.Errorf("Last() = %+v, want %+v", last, want)
			}
			if !last.StartedAt.Equal(want.StartedAt) {
				t.Errorf("StartedAt = %v, want %v", last.StartedAt, want.StartedAt)
			}

			if _, err := store.Last(ctx, ordersKey); !errors.Is(err, ErrNoRun) {
				t.Errorf("Last(orders) error = %v, want ErrNoRun", err)
			}
		})
	}
}

func TestMemoryStore_ConcurrentNext(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	seen := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.Next(ctx, itemsKey)
			if err != nil {
				t.Errorf("Next() error = %v", err)
				return
			}
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for n := range seen {
		if unique[n] {
			t.Errorf("sequence %d handed out twice", n)
		}
		unique[n] = true
	}
	if len(unique) != workers {
		t.Errorf("got %d distinct sequences, want %d", len(unique), workers)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Next(ctx, itemsKey); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestRedisStore_InvalidRun(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, 0)
	ctx := context.Background()

	client.Set(ctx, itemsKey.RunKey(), "{not json", 0)

	if _, err := store.Last(ctx, itemsKey); !errors.Is(err, ErrInvalidRun) {
		t.Errorf("Last() error = %v, want ErrInvalidRun", err)
	}
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil, 0)
}
