package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/scan"
	"github.com/MJE43/raid-frame-finder/internal/store"
	"github.com/MJE43/raid-frame-finder/internal/worker"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 60 * time.Second
)

// Server handles HTTP requests
type Server struct {
	db           store.DB
	dens         *dens.Table
	scanner      *scan.Scanner
	dispatcher   *worker.Dispatcher
	errorHandler *ErrorHandler
	logger       *log.Logger
	audit        *AuditLogger
	allowOrigin  string
	startTime    time.Time
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and error logger
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuditOutput sets where audit events are written
func WithAuditOutput(w io.Writer) Option {
	return func(s *Server) { s.audit = NewAuditLogger(w) }
}

// WithDens replaces the embedded den table
func WithDens(t *dens.Table) Option {
	return func(s *Server) { s.dens = t }
}

// WithWorkers sets the scanner worker count
func WithWorkers(n int) Option {
	return func(s *Server) { s.scanner = scan.NewScannerWithWorkers(n) }
}

// WithDispatcher replaces the search dispatcher. The server closes it.
func WithDispatcher(d *worker.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithAllowOrigin sets the CORS origin; "*" by default
func WithAllowOrigin(origin string) Option {
	return func(s *Server) { s.allowOrigin = origin }
}

// NewServer creates a new API server. db may be nil, in which case runs
// and settings are not persisted and their endpoints report unavailable.
func NewServer(db store.DB, opts ...Option) *Server {
	s := &Server{
		db:          db,
		dens:        dens.Default(),
		scanner:     scan.NewScanner(),
		logger:      log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		audit:       NewAuditLogger(os.Stdout),
		allowOrigin: "*",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errorHandler = NewErrorHandler(s.logger, s.audit)
	if s.dispatcher == nil {
		s.dispatcher = worker.NewDispatcher(worker.WithLogger(s.logger))
	}

	s.audit.LogSystemStartup("unknown", map[string]interface{}{
		"dens_available":   len(s.dens.List()),
		"database_enabled": s.db != nil,
	})

	return s
}

// Close cancels in-flight searches and waits for them to finish
func (s *Server) Close() {
	s.dispatcher.Close()
	s.audit.LogSystemShutdown("close", time.Since(s.startTime))
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/dens", s.handleListDens)
		r.Get("/dens/{id}", s.handleGetDen)
		r.Post("/frames", s.handleFrames)
		r.Post("/search", s.handleSearch)
		r.Post("/scan", s.handleScan)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Delete("/runs/{id}", s.handleDeleteRun)
		r.Get("/runs/{id}/hits", s.handleGetRunHits)

		r.Get("/settings/{key}", s.handleGetSetting)
		r.Put("/settings/{key}", s.handlePutSetting)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d err=%v", status, err)
	}
}

// decodeJSON reads a bounded JSON body into v, writing the error response
// itself when decoding fails.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.errorHandler.HandleDecodeError(w, r, err)
		return false
	}
	return true
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}
