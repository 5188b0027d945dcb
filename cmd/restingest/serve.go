package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/rest-ingest/pkg/config"
	"github.com/Sternrassler/rest-ingest/pkg/ingest"
	"github.com/Sternrassler/rest-ingest/pkg/logging"
	"github.com/Sternrassler/rest-ingest/pkg/metrics"
)

const maxDocumentSize = 1024 * 1024

type serverConfig struct {
	Addr string

	// OutputRoot contains every output_dir. Relative document paths are
	// placed below it; paths leading outside it are rejected.
	OutputRoot string

	// AllowRemoteStores accepts redis_addr and object_store from request
	// bodies. Off by default: they make the server dial arbitrary hosts.
	AllowRemoteStores bool

	ShutdownTimeout time.Duration
}

func newServeCmd() *cobra.Command {
	cfg := serverConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP API that triggers ingests",
		Long: `Serve an HTTP API that triggers ingests.

Endpoints:
  GET  /health          liveness check
  GET  /metrics         Prometheus metrics
  POST /api/v1/ingest   run one ingest for the config document in the body

Submitted output_dir values are confined to --output-root. redis_addr and
object_store are rejected unless --allow-remote-stores is set; use REDIS_ADDR
for a server-wide run store instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			root, err := config.ResolvePath(cfg.OutputRoot)
			if err != nil {
				return fmt.Errorf("output root: %w", err)
			}
			cfg.OutputRoot = root

			opts, closeStore, err := runStoreOptions(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			s := newServer(cfg, opts)
			errCh := make(chan error, 1)
			go func() { errCh <- s.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return s.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", envOr("ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&cfg.OutputRoot, "output-root", envOr("OUTPUT_ROOT", config.DefaultOutputDir), "directory that contains every submitted output_dir")
	cmd.Flags().BoolVar(&cfg.AllowRemoteStores, "allow-remote-stores", false, "accept redis_addr and object_store in submitted configs")
	cmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight ingests on shutdown")
	return cmd
}

// server exposes ingests over HTTP.
type server struct {
	echo   *echo.Echo
	cfg    serverConfig
	opts   []ingest.Option
	logger zerolog.Logger
}

func newServer(cfg serverConfig, opts []ingest.Option) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &server{
		echo:   e,
		cfg:    cfg,
		opts:   opts,
		logger: logging.NewLogger("api"),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := e.Group("/api/v1")
	v1.POST("/ingest", s.handleIngest)

	return s
}

func (s *server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info().
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("HTTP request")
		return nil
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	RunID      string `json:"run_id"`
	Records    int    `json:"records"`
	Pages      int    `json:"pages"`
	OutputPath string `json:"output_path"`
	MirrorKey  string `json:"mirror_key,omitempty"`
}

func (s *server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *server) handleIngest(c echo.Context) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	logger := logging.ForConfig(s.logger, requestID)

	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDocumentSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body: "+err.Error())
	}
	if len(data) > maxDocumentSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("config document exceeds %d bytes", maxDocumentSize))
	}

	cfg, err := s.loadConfig(data, documentFormat(c.Request()))
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected config document")
		return echo.NewHTTPError(statusFor(err), err.Error())
	}

	ing, err := ingest.New(cfg, append([]ingest.Option{ingest.WithLogger(logger)}, s.opts...)...)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	defer ing.Close()

	logger.Debug().
		Str("url", ing.Config().URL()).
		Str("output_dir", ing.Config().OutputDir).
		Msg("Config accepted")

	result, err := ing.Ingest(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}

	return c.JSON(http.StatusOK, IngestResponse{
		RunID:      result.RunID,
		Records:    len(result.Records),
		Pages:      result.Pages,
		OutputPath: result.OutputPath,
		MirrorKey:  result.MirrorKey,
	})
}

func (s *server) loadConfig(data []byte, format config.Format) (config.IngestConfig, error) {
	cfg, err := config.Parse(data, format)
	if err != nil {
		return config.IngestConfig{}, err
	}

	if !s.cfg.AllowRemoteStores {
		if cfg.RedisAddr != "" {
			return config.IngestConfig{}, &config.ParseError{Field: "redis_addr", Reason: "is not accepted by this server"}
		}
		if cfg.ObjectStore != nil {
			return config.IngestConfig{}, &config.ParseError{Field: "object_store", Reason: "is not accepted by this server"}
		}
	}

	if err := config.ApplyEnv(&cfg); err != nil {
		return config.IngestConfig{}, err
	}
	if cfg.OutputDir, err = confine(s.cfg.OutputRoot, cfg.OutputDir); err != nil {
		return config.IngestConfig{}, err
	}
	return cfg, cfg.Validate()
}

// confine places dir below root. Relative paths are joined to root; any
// path that resolves outside root is a *config.ParseError.
func confine(root, dir string) (string, error) {
	p := dir
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &config.ParseError{Field: "output_dir", Reason: fmt.Sprintf("must stay inside %s (got %q)", root, dir)}
	}
	return p, nil
}

// documentFormat picks YAML for ?format=yaml or a YAML content type.
func documentFormat(r *http.Request) config.Format {
	if strings.EqualFold(r.URL.Query().Get("format"), "yaml") ||
		strings.Contains(strings.ToLower(r.Header.Get(echo.HeaderContentType)), "yaml") {
		return config.FormatYAML
	}
	return config.FormatJSON
}

// statusFor maps the ingest error taxonomy onto response codes.
func statusFor(err error) int {
	var (
		configErr  *config.ParseError
		parseErr   *ingest.ParseError
		extractErr *ingest.ExtractionError
		httpErr    *ingest.HTTPError
		fetchErr   *ingest.FetchError
	)

	switch {
	case errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.As(err, &parseErr), errors.As(err, &extractErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &httpErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Start listens on the configured address.
func (s *server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
	return s.echo.Start(s.cfg.Addr)
}

// Shutdown waits for in-flight requests, bounded by ctx.
func (s *server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}
