// Package server provides the HTTP API for Metrix Studio.
//
// Endpoints:
//
//	POST   /db/open       {"path": "..."}   create or open a database
//	POST   /db/connect    {"path": "..."}   open an existing database
//	POST   /db/close                        close the open database
//	POST   /db/query      {"query": "..."}  run a query, returns the result
//	GET    /db/status                       connection state and path
//	GET    /history?limit=N                 recorded query runs, newest first
//	DELETE /history                         clear recorded runs
//	GET    /recent                          recent connections
//	DELETE /recent?path=...                 forget a recent connection
//	GET    /health                          liveness
//	GET    /status                          server counters and connection state
//
// Failures are returned as {"error": true, "message": "...", "code": N} where
// message is the driver's text verbatim and code mirrors the HTTP status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nexepic/metrix-studio/pkg/commands"
	"github.com/nexepic/metrix-studio/pkg/config"
	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/logging"
)

// Errors for HTTP operations.
var (
	ErrServerClosed  = errors.New("server closed")
	ErrBadRequest    = errors.New("bad request")
	ErrInternalError = errors.New("internal server error")
)

// Config holds HTTP server configuration.
type Config struct {
	// Address to bind to (default: "127.0.0.1")
	Address string
	// Port to listen on (default: 7480)
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes (default: 10MB)
	MaxRequestSize int64
	// EnableCORS for cross-origin requests
	EnableCORS bool
	// CORSOrigins allowed (default: "*")
	CORSOrigins []string
	// TLSCertFile for HTTPS
	TLSCertFile string
	// TLSKeyFile for HTTPS
	TLSKeyFile string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        "127.0.0.1",
		Port:           7480,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},
	}
}

// ConfigFrom converts the file/env server section into a server Config.
func ConfigFrom(c config.ServerConfig) *Config {
	cfg := DefaultConfig()
	cfg.Address = c.Address
	cfg.Port = c.Port
	cfg.ReadTimeout = c.ReadTimeout
	cfg.WriteTimeout = c.WriteTimeout
	if n := c.MaxRequestBytes(); n > 0 {
		cfg.MaxRequestSize = n
	}
	cfg.EnableCORS = c.EnableCORS
	cfg.CORSOrigins = c.CORSOrigins
	return cfg
}

// Server is the HTTP API server.
type Server struct {
	config  *Config
	service *commands.Service
	logger  *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	// Metrics
	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New creates a new HTTP server. A nil config uses DefaultConfig and a nil
// logger discards request logs.
func New(service *commands.Service, config *Config, logger *slog.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if service == nil {
		return nil, fmt.Errorf("service required")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Server{
		config:  config,
		service: service,
		logger:  logger,
		started: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			err = s.httpServer.ServeTLS(listener, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the server. The database connection is left to
// the service owner.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns server statistics.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

// ServerStats holds server metrics.
type ServerStats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
}

// =============================================================================
// Router Setup
// =============================================================================

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /db/open", s.handleOpen)
	mux.HandleFunc("POST /db/connect", s.handleConnect)
	mux.HandleFunc("POST /db/close", s.handleClose)
	mux.HandleFunc("POST /db/query", s.handleQuery)
	mux.HandleFunc("GET /db/status", s.handleDBStatus)

	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("DELETE /history", s.handleClearHistory)
	mux.HandleFunc("GET /recent", s.handleRecent)
	mux.HandleFunc("DELETE /recent", s.handleForgetRecent)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	// Wrap with middleware
	handler := s.corsMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)

	return handler
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}

			allowed := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// Skip health checks for noise reduction
		if r.URL.Path != "/health" {
			s.logRequest(r, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				s.logger.Error("panic in handler", "panic", err, "path", r.URL.Path, "stack", string(buf[:n]))

				s.writeError(w, http.StatusInternalServerError, ErrInternalError.Error())
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Database Handlers
// =============================================================================

// PathRequest is the body of /db/open and /db/connect.
type PathRequest struct {
	Path string `json:"path"`
}

// QueryRequest is the body of /db/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	s.handlePath(w, r, s.service.OpenDatabase)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.handlePath(w, r, s.service.ConnectExisting)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (string, error)) {
	var req PathRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	msg, err := op(r.Context(), req.Path)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseDatabase(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: "Database closed"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	res, err := s.service.RunQuery(r.Context(), req.Query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDBStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Status())
}

// =============================================================================
// History Handlers
// =============================================================================

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History(parseIntQuery(r, "limit", 0))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	recent, err := s.service.RecentConnections()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recent)
}

func (s *Server) handleForgetRecent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := s.service.ForgetConnection(path); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Health/Status Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Stats()

	response := map[string]interface{}{
		"status": "running",
		"server": map[string]interface{}{
			"uptime_seconds": stats.Uptime.Seconds(),
			"requests":       stats.RequestCount,
			"errors":         stats.ErrorCount,
			"active":         stats.ActiveRequests,
		},
		"database": s.service.Status(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// =============================================================================
// Helpers
// =============================================================================

// StatusCode maps a service error to an HTTP status.
func StatusCode(err error) int {
	switch driver.KindOf(err) {
	case driver.ErrInvalidInput:
		return http.StatusBadRequest
	case driver.ErrNoConnection:
		return http.StatusConflict
	case driver.ErrOpenFailure:
		return http.StatusNotFound
	case driver.ErrExecutionFailure:
		return http.StatusUnprocessableEntity
	case driver.ErrSystemFailure:
		return http.StatusBadGateway
	case driver.ErrLockFailure:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, commands.ErrHistoryDisabled) {
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// JSON helpers

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	// Limit body size
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, StatusCode(err), err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.errorCount.Add(1)

	response := map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	}

	s.writeJSON(w, status, response)
}

// Logging helpers

func (s *Server) logRequest(r *http.Request, status int, duration time.Duration) {
	s.logger.Info("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
}
