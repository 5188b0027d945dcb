//go:build integration

package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/rest-ingest/internal/testutil"
	"github.com/Sternrassler/rest-ingest/pkg/runstore"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port(), func() { container.Terminate(ctx) }
}

// TestIntegration_RedisRunStore runs the full flow with redis_addr set:
// pages -> records -> file named from the Redis sequence -> ledger entry.
func TestIntegration_RedisRunStore(t *testing.T) {
	addr, cleanup := setupRedis(t)
	defer cleanup()

	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetPages("/items",
		testutil.NewJSONResponse(`[{"id":1},{"id":2}]`),
		testutil.NewJSONResponse(`[{"id":3}]`),
	)

	cfg := pageNumberConfig(api.URL(), t.TempDir())
	cfg.RedisAddr = addr

	ing, err := New(cfg, WithClock(fixedClock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	first, err := ing.Ingest(ctx)
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	api.Reset()
	second, err := ing.Ingest(ctx)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if got := filepath.Base(first.OutputPath); got != "items_20250301T120000Z_1.json" {
		t.Errorf("first output = %s", got)
	}
	if got := filepath.Base(second.OutputPath); got != "items_20250301T120000Z_2.json" {
		t.Errorf("second output = %s", got)
	}

	store := runstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), 0)
	defer store.Close()

	run, err := store.Last(ctx, ing.Key())
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if run.ID != second.RunID || run.Records != 3 || run.Pages != 2 {
		t.Errorf("ledger run = %+v, want id %s with 3 records over 2 pages", run, second.RunID)
	}
}
