// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 64 << 20

// Asker answers one question. Implementations serialize concurrent calls.
type Asker interface {
	Ask(ctx context.Context, query string, onToken llm.TokenFunc) (*models.Answer, error)
}

// Ingester adds a single source file to the store.
type Ingester interface {
	Accepts(path string) bool
	IngestFile(ctx context.Context, path string) (ingest.Summary, error)
}

// StoreStatus reports on the vector store.
type StoreStatus interface {
	Info(ctx context.Context) (storage.Info, error)
	DiskUsage() (int64, error)
}

// Server is the HTTP server for the kotae API.
type Server struct {
	asker     Asker
	ingester  Ingester
	store     StoreStatus
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *Metrics
	registry  *prometheus.Registry
	server    *http.Server
	uploadDir string
}

// NewServer creates a server with the given dependencies. Uploaded documents are
// saved under cfg.Ingest.SourceDirectory.
func NewServer(asker Asker, ingester Ingester, store StoreStatus, cfg *config.Config, logger *zap.Logger) *Server {
	logger = utils.OrNop(logger)
	registry := prometheus.NewRegistry()
	return &Server{
		asker:     asker,
		ingester:  ingester,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		metrics:   NewMetrics(registry),
		registry:  registry,
		uploadDir: cfg.Ingest.SourceDirectory,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.cfg.LLM.TimeoutSecs+30) * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/documents", s.handleUpload)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
