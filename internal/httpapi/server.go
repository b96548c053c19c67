// Package httpapi serves the analytics views as JSON for dashboards.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/query"
	"github.com/tobert/trace-analytics/internal/storage"
)

// Store is the part of the span store the API reads directly.
type Store interface {
	Stats() storage.StoreStats
	Subscribe() (<-chan struct{}, func())
}

// Options configures a Server.
type Options struct {
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server exposes the query service over HTTP.
type Server struct {
	queries  *query.Service
	store    Store
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	started  time.Time
}

// New creates an API server.
func New(queries *query.Service, store Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		queries:  queries,
		store:    store,
		gatherer: opts.Gatherer,
		logger:   logger.Named("http"),
		started:  time.Now(),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches the API routes to r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/services", s.handleServices)
		r.Get("/services/{service}/dependencies", s.handleDependencies)
		r.Get("/services/{service}/span-types", s.handleSpanTypes)
		r.Get("/traces", s.handleTraces)
		r.Get("/latency-histogram", s.handleHistogram)
		r.Get("/operations", s.handleOperations)
		r.Get("/error-trend", s.handleErrorTrend)
		r.Get("/error-top", s.handleTopErrors)
	})
	r.Get("/ws", s.handleWebSocket)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// statusResponse is the JSON shape for /api/status.
type statusResponse struct {
	storage.StoreStats
	MaxTracesPerQuery int     `json:"max_traces_per_query"`
	Uptime            float64 `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		StoreStats:        s.store.Stats(),
		MaxTracesPerQuery: s.queries.MaxTraces(),
		Uptime:            time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	res, err := s.queries.Services(r.Context())
	respond(w, s.logger, res, err)
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.Summaries(r.Context(), f)
	respond(w, s.logger, res, err)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.LatencyHistogram(r.Context(), f)
	respond(w, s.logger, res, err)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.Dependencies(r.Context(), chi.URLParam(r, "service"), f)
	respond(w, s.logger, res, err)
}

func (s *Server) handleSpanTypes(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.SpanTypes(r.Context(), chi.URLParam(r, "service"), f)
	respond(w, s.logger, res, err)
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	window, err := parseDuration(r, "window")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.Operations(r.Context(), f, window)
	respond(w, s.logger, res, err)
}

func (s *Server) handleErrorTrend(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	bucket, err := parseDuration(r, "bucket")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.ErrorTrend(r.Context(), f, bucket)
	respond(w, s.logger, res, err)
}

func (s *Server) handleTopErrors(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	k, err := parseInt(r, "k")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.queries.TopErrors(r.Context(), f, k)
	respond(w, s.logger, res, err)
}

// logRequests logs one line per request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respond(w http.ResponseWriter, logger *zap.Logger, v any, err error) {
	if err != nil {
		writeError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// writeError maps invalid filters to 400 and everything else to 503.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusServiceUnavailable
	if errors.Is(err, storage.ErrInvalidFilter) {
		status = http.StatusBadRequest
	} else {
		logger.Warn("query failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("failed to write json", zap.Error(err))
	}
}
