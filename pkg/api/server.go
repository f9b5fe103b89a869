package api

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/model"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
)

// GraphValidator checks an application model for cycles.
type GraphValidator interface {
	ValidateGraph(ctx context.Context, app model.ApplicationModel, highlighted []model.TaskID) (scheduler.ValidationResult, error)
}

// Config wires the API server.
type Config struct {
	Addr     string
	Registry *Registry
	// Validator serves POST .../validate. Nil answers 503.
	Validator GraphValidator
	// Schema validates imported documents. Nil skips the schema stage.
	Schema         *interchange.Validator
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server encapsulates the HTTP API server
type Server struct {
	registry  *Registry
	validator GraphValidator
	schema    *interchange.Validator
	logger    *slog.Logger
	handler   http.Handler
	server    *http.Server

	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(RegistryConfig{Logger: cfg.Logger})
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}

	s := &Server{
		registry:  cfg.Registry,
		validator: cfg.Validator,
		schema:    cfg.Schema,
		logger:    cfg.Logger,
	}
	s.handler = s.routes(cfg.AllowedOrigins)
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

func (s *Server) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(s.withLogging)
	r.Use(s.withRecovery)
	r.Use(withSecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID"},
		ExposedHeaders: []string{"X-Trace-ID", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/v1/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/schema", s.handleSchema)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/selection", s.handleSelect)

			r.Post("/tasks", s.handleAddTask)
			r.Patch("/tasks/{taskID}", s.handleUpdateTask)
			r.Delete("/tasks/{taskID}", s.handleDeleteTask)
			r.Post("/messages", s.handleAddMessage)

			r.Post("/nodes", s.handleAddNode)
			r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
			r.Post("/links", s.handleAddLink)
			r.Delete("/links", s.handleDeleteLink)
			r.Patch("/links/{linkID}", s.handleUpdateLink)

			r.Post("/generate/application", s.handleGenerateApplication)
			r.Post("/generate/platform", s.handleGeneratePlatform)
			r.Post("/import", s.handleImport)
			r.Get("/export", s.handleExport)
			r.Post("/example", s.handleExample)

			r.Post("/schedule/retry", s.handleRetry)
			r.Post("/validate", s.handleValidate)
			r.Get("/stream", s.handleStream)
		})
	})
	return r
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Registry returns the session registry.
func (s *Server) Registry() *Registry { return s.registry }

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	var err error
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("Server starting", "addr", s.server.Addr, "tls", true)
		err = s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	} else {
		s.logger.Info("Server starting", "addr", s.server.Addr, "tls", false)
		err = s.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Server stopping")
	return s.server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context(), s.logger).Error("Panic in handler", "panic", rec, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := r.Context()
		if id := r.Header.Get("X-Trace-ID"); id != "" {
			ctx = logging.WithTraceID(ctx, id)
		}
		ctx, traceID := logging.EnsureTraceID(ctx)
		logger := s.logger.With("traceID", traceID)
		ctx = logging.WithLogger(ctx, logger)
		r = r.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"durationMs", time.Since(start).Milliseconds())
	})
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack passes through to the underlying writer for websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
