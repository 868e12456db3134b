// Package server provides the HTTP API for tagging reports and exporting
// them as inline XBRL.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/saranrapjs/esrs-ixbrl/pkg/conceptsearch"
	"github.com/saranrapjs/esrs-ixbrl/pkg/config"
	"github.com/saranrapjs/esrs-ixbrl/pkg/db"
	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
)

// maxDocumentSize bounds request bodies carrying documents to validate.
const maxDocumentSize = 50 << 20

// Server is the HTTP server for the tagging API.
type Server struct {
	taxonomy  *taxonomy.Store
	db        *db.DB
	contexts  *report.Registry
	generator *ixbrl.Generator
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server

	searchMu  sync.Mutex
	searchFor *taxonomy.Index
	search    *conceptsearch.Index
}

// NewServer creates a server with the given dependencies. Contexts cached
// in database are loaded into the context registry.
func NewServer(
	store *taxonomy.Store,
	database *db.DB,
	generator *ixbrl.Generator,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) (*Server, error) {
	cached, err := database.ListContexts()
	if err != nil {
		return nil, fmt.Errorf("failed to load contexts: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		taxonomy:  store,
		db:        database,
		contexts:  report.NewRegistry(cached...),
		generator: generator,
		config:    cfg,
		logger:    logger,
	}, nil
}

// conceptIndex returns the ranked search index for the current taxonomy,
// rebuilding it after a reload.
func (s *Server) conceptIndex() (*taxonomy.Index, *conceptsearch.Index, error) {
	idx := s.taxonomy.Index()
	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	if s.search != nil && s.searchFor == idx {
		return idx, s.search, nil
	}
	search, err := conceptsearch.New(idx)
	if err != nil {
		return nil, nil, err
	}
	if s.search != nil {
		_ = s.search.Close()
	}
	s.searchFor, s.search = idx, search
	s.logger.Debug("built concept search index", zap.Int("nodes", idx.Len()))
	return idx, search, nil
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/taxonomy/search", s.handleTaxonomySearch)
		r.Get("/taxonomy/nodes/{id}", s.handleTaxonomyNode)

		r.Get("/contexts", s.handleListContexts)
		r.Post("/contexts", s.handleCreateContext)
		r.Delete("/contexts/{id}", s.handleDeleteContext)

		r.Get("/reports", s.handleListReports)
		r.Post("/reports", s.handleCreateReport)
		r.Route("/reports/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetReport)
			r.Put("/", s.handleUpdateReport)
			r.Delete("/", s.handleDeleteReport)
			r.Post("/blocks/{blockID}/tags", s.handleAddTag)
			r.Delete("/blocks/{blockID}/tags/{tagID}", s.handleRemoveTag)
			r.Get("/check", s.handleCheckReport)
			r.Get("/ixbrl", s.handleGenerate)
			r.Get("/export.json", s.handleExportJSON)
			r.Get("/export.xlsx", s.handleExportWorkbook)
		})

		r.Post("/validate", s.handleValidate)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.searchMu.Lock()
	if s.search != nil {
		_ = s.search.Close()
		s.search = nil
	}
	s.searchMu.Unlock()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
