// Package query runs analytics over filtered snapshots of the span store.
//
// Every call takes one snapshot, caps it to the configured number of traces,
// and hands it to a pure function from package analytics. Nothing is cached.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/analytics"
	"github.com/tobert/trace-analytics/internal/storage"
)

// DefaultMaxTraces bounds how many traces a single query aggregates.
const DefaultMaxTraces = 5000

// ErrQueryFailed wraps every error returned by Service. The underlying cause
// (storage.ErrInvalidFilter, a context error, a store failure) stays in the
// chain for errors.Is.
var ErrQueryFailed = errors.New("query failed")

// View names used in logs and metric labels.
const (
	ViewSummaries    = "summaries"
	ViewHistogram    = "latency_histogram"
	ViewDependencies = "dependencies"
	ViewSpanTypes    = "span_types"
	ViewOperations   = "operations"
	ViewErrorTrend   = "error_trend"
	ViewTopErrors    = "top_errors"
	ViewServices     = "services"
)

// SpanStore is the read side of the span store. QueryTraces must return
// traces ordered by root start time, oldest first.
type SpanStore interface {
	QueryTraces(ctx context.Context, filter storage.QueryFilter) ([]analytics.Trace, error)
	Services(ctx context.Context) ([]string, error)
}

// Result carries a view together with how much data produced it.
type Result[T any] struct {
	Data       T    `json:"data"`
	TraceCount int  `json:"trace_count"`
	Truncated  bool `json:"truncated"`
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	MaxTraces int
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Service answers analytics queries against a SpanStore.
type Service struct {
	store     SpanStore
	maxTraces int
	logger    *zap.Logger
	metrics   *Metrics
}

// NewService creates a query service over store.
func NewService(store SpanStore, opts Options) *Service {
	if opts.MaxTraces <= 0 {
		opts.MaxTraces = DefaultMaxTraces
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		maxTraces: opts.MaxTraces,
		logger:    opts.Logger.Named("query"),
		metrics:   opts.Metrics,
	}
}

// MaxTraces returns the per-query trace cap.
func (s *Service) MaxTraces() int {
	return s.maxTraces
}

// Summaries returns one summary per matching trace, oldest first.
func (s *Service) Summaries(ctx context.Context, f storage.QueryFilter) (Result[[]analytics.TraceSummary], error) {
	return run(ctx, s, ViewSummaries, f, analytics.SummarizeAll)
}

// LatencyHistogram buckets the root durations of matching traces.
func (s *Service) LatencyHistogram(ctx context.Context, f storage.QueryFilter) (Result[[]analytics.LatencyBucket], error) {
	return run(ctx, s, ViewHistogram, f, func(traces []analytics.Trace) []analytics.LatencyBucket {
		return analytics.BuildLatencyHistogram(analytics.Durations(analytics.SummarizeAll(traces)))
	})
}

// Dependencies returns the downstream calls made by service.
func (s *Service) Dependencies(ctx context.Context, service string, f storage.QueryFilter) (Result[[]analytics.Dependency], error) {
	f, err := scopeToService(f, service)
	if err != nil {
		return Result[[]analytics.Dependency]{}, fmt.Errorf("%w: %s: %w", ErrQueryFailed, ViewDependencies, err)
	}
	return run(ctx, s, ViewDependencies, f, func(traces []analytics.Trace) []analytics.Dependency {
		return analytics.BuildDependencyGraph(service, traces)
	})
}

// SpanTypes splits service's own span time into http, database and other.
func (s *Service) SpanTypes(ctx context.Context, service string, f storage.QueryFilter) (Result[[]analytics.SpanTypeBreakdown], error) {
	f, err := scopeToService(f, service)
	if err != nil {
		return Result[[]analytics.SpanTypeBreakdown]{}, fmt.Errorf("%w: %s: %w", ErrQueryFailed, ViewSpanTypes, err)
	}
	return run(ctx, s, ViewSpanTypes, f, func(traces []analytics.Trace) []analytics.SpanTypeBreakdown {
		return analytics.ClassifySpanTypes(service, traces)
	})
}

// Operations returns per-operation statistics. window sets the RPS divisor;
// zero or negative uses the span of the data itself.
func (s *Service) Operations(ctx context.Context, f storage.QueryFilter, window time.Duration) (Result[[]analytics.OperationStats], error) {
	return run(ctx, s, ViewOperations, f, func(traces []analytics.Trace) []analytics.OperationStats {
		return analytics.AggregateOperationStats(traces, window)
	})
}

// ErrorTrend returns the error-rate series. bucket <= 0 yields the cumulative
// per-trace series, otherwise one point per non-empty bucket.
func (s *Service) ErrorTrend(ctx context.Context, f storage.QueryFilter, bucket time.Duration) (Result[[]analytics.ErrorRatePoint], error) {
	return run(ctx, s, ViewErrorTrend, f, func(traces []analytics.Trace) []analytics.ErrorRatePoint {
		return analytics.BuildBucketedErrorRate(analytics.SummarizeAll(traces), bucket)
	})
}

// TopErrors returns the k operations with the highest error rate.
func (s *Service) TopErrors(ctx context.Context, f storage.QueryFilter, k int) (Result[[]analytics.OperationErrorRate], error) {
	return run(ctx, s, ViewTopErrors, f, func(traces []analytics.Trace) []analytics.OperationErrorRate {
		return analytics.TopErrorOperations(analytics.SummarizeAll(traces), k)
	})
}

// Services lists every service name present in the store.
func (s *Service) Services(ctx context.Context) (Result[[]string], error) {
	done := s.metrics.observe(ViewServices)

	services, err := s.store.Services(ctx)
	if err != nil {
		done(err)
		return Result[[]string]{}, fmt.Errorf("%w: %s: %w", ErrQueryFailed, ViewServices, err)
	}
	done(nil)

	return Result[[]string]{Data: services}, nil
}

// run loads a capped snapshot and applies fn to it.
func run[T any](ctx context.Context, s *Service, view string, f storage.QueryFilter, fn func([]analytics.Trace) T) (Result[T], error) {
	started := time.Now()
	done := s.metrics.observe(view)

	traces, truncated, err := s.load(ctx, f)
	if err != nil {
		done(err)
		s.logger.Debug("query failed", zap.String("view", view), zap.Error(err))
		return Result[T]{}, fmt.Errorf("%w: %s: %w", ErrQueryFailed, view, err)
	}

	data := fn(traces)
	done(nil)

	if truncated {
		s.metrics.truncated(view)
		s.logger.Warn("query truncated",
			zap.String("view", view),
			zap.Int("max_traces", s.maxTraces))
	}
	s.logger.Debug("query",
		zap.String("view", view),
		zap.Int("traces", len(traces)),
		zap.Bool("truncated", truncated),
		zap.Duration("elapsed", time.Since(started)))

	return Result[T]{Data: data, TraceCount: len(traces), Truncated: truncated}, nil
}

// load fetches the matching traces and keeps at most maxTraces of the most
// recent ones.
func (s *Service) load(ctx context.Context, f storage.QueryFilter) ([]analytics.Trace, bool, error) {
	traces, err := s.store.QueryTraces(ctx, f)
	if err != nil {
		return nil, false, err
	}
	if len(traces) <= s.maxTraces {
		return traces, false, nil
	}
	return traces[len(traces)-s.maxTraces:], true, nil
}

// scopeToService narrows f to traces touching service. Traces without any
// span of service contribute nothing to service-scoped views.
func scopeToService(f storage.QueryFilter, service string) (storage.QueryFilter, error) {
	if service == "" {
		return f, fmt.Errorf("%w: service is required", storage.ErrInvalidFilter)
	}
	if f.Service == "" {
		f.Service = service
	}
	return f, nil
}
