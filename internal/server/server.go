// Package server exposes the analysis pipeline over HTTP.
//
// The server holds no dataset between requests: every request names its file
// and parameters and runs its own pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/churnwatch/internal/churn"
	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// DefaultDataFile is used when a request omits filePath.
const DefaultDataFile = "ventas_anonimizadas.csv"

// Defaults fill request parameters that the client leaves out.
type Defaults struct {
	DataFile   string
	Period     string
	CustomSpan string
	Churn      churn.Options
	Train      churn.TrainConfig
	Forest     classifier.ForestConfig
}

// Config holds configuration for the API server.
type Config struct {
	Addr     string
	DataDir  string
	Loader   pipeline.Loader
	Logger   *slog.Logger
	Defaults Defaults
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	dataDir  string
	loader   pipeline.Loader
	logger   *slog.Logger
	defaults Defaults
	metrics  *Metrics
	validate *requestValidator
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defaults := cfg.Defaults
	if defaults.DataFile == "" {
		defaults.DataFile = DefaultDataFile
	}
	if defaults.Train == (churn.TrainConfig{}) {
		defaults.Train = churn.DefaultTrainConfig()
	}
	if defaults.Forest.Trees == 0 {
		defaults.Forest = classifier.DefaultForestConfig()
	}
	return &Server{
		addr:     cfg.Addr,
		dataDir:  cfg.DataDir,
		loader:   cfg.Loader,
		logger:   logger,
		defaults: defaults,
		metrics:  NewMetrics(),
		validate: newValidator(),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
		s.metrics.Middleware,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/aggregate", s.handleAggregate)
		r.Post("/visualize", s.handleVisualize)
		r.Post("/identify-risk", s.handleIdentifyRisk)
		r.Post("/predict-risk", s.handlePredictRisk)
	})
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting API server", "addr", s.addr, "data_dir", s.dataDir)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) pipelineOptions() pipeline.Options {
	return pipeline.Options{Logger: s.logger, Observer: s.metrics.Observer()}
}
