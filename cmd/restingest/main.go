// Command restingest pulls paginated REST endpoints into JSON array files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/rest-ingest/pkg/ingest"
	"github.com/Sternrassler/rest-ingest/pkg/logging"
	"github.com/Sternrassler/rest-ingest/pkg/runstore"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		logPretty bool
	)

	root := &cobra.Command{
		Use:   "restingest",
		Short: "Ingest paginated REST API endpoints into JSON files",
		Long: `restingest fetches every page of a REST endpoint described by a config
document, extracts the records and writes them as one JSON array file per run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:  level,
				Pretty: logPretty,
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable console logs")

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	return root
}

// runStoreOptions wires the Redis run store when REDIS_ADDR is set. The
// returned close function is never nil.
func runStoreOptions(ctx context.Context) ([]ingest.Option, func(), error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, func() {}, nil
	}

	store, err := runstore.Dial(ctx, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("run store: %w", err)
	}
	opts := []ingest.Option{ingest.WithSequencer(store), ingest.WithLedger(store)}
	return opts, func() { store.Close() }, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
