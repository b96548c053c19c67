// Package analytics turns a batch of spans into the derived views a trace
// dashboard needs: trace summaries, latency histograms, dependency graphs,
// span-type breakdowns, per-operation statistics and error-rate trends.
//
// Every function in this package is a pure transformation of its input. Nothing
// is cached and nothing is shared between calls, so callers may invoke them
// concurrently over the same snapshot.
package analytics

import "time"

// StatusCode is the outcome of a span.
type StatusCode string

const (
	StatusOK    StatusCode = "ok"
	StatusError StatusCode = "error"
)

// HTTPAttributes is present on spans that represent a network call.
type HTTPAttributes struct {
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// DBAttributes is present on spans that represent a database call.
type DBAttributes struct {
	System    string `json:"system,omitempty"`
	Name      string `json:"name,omitempty"`
	Statement string `json:"statement,omitempty"`
}

// Span is one timed unit of work scoped to a single service and operation.
// ParentSpanID is empty for root spans.
type Span struct {
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	ParentSpanID  string            `json:"parent_span_id,omitempty"`
	ServiceName   string            `json:"service_name"`
	OperationName string            `json:"operation_name"`
	Namespace     string            `json:"namespace,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	DurationMs    float64           `json:"duration_ms"`
	Status        StatusCode        `json:"status"`
	HTTP          *HTTPAttributes   `json:"http,omitempty"`
	DB            *DBAttributes     `json:"db,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// IsError reports whether the span finished with an error status.
func (s Span) IsError() bool {
	return s.Status == StatusError
}

// EndTime returns StartTime plus the span duration.
func (s Span) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMs * float64(time.Millisecond)))
}

// TraceSummary is a one-line projection of a trace.
type TraceSummary struct {
	TraceID       string    `json:"trace_id"`
	RootService   string    `json:"root_service"`
	RootOperation string    `json:"root_operation"`
	DurationMs    float64   `json:"duration_ms"`
	HasError      bool      `json:"has_error"`
	StartTime     time.Time `json:"start_time"`
}

// LatencyBucket counts traces whose duration falls in [RangeStartMs, RangeEndMs).
// RangeEndMs is nil for the open-ended final bucket.
type LatencyBucket struct {
	RangeStartMs float64  `json:"range_start_ms"`
	RangeEndMs   *float64 `json:"range_end_ms"`
	Label        string   `json:"label"`
	Count        int      `json:"count"`
}

// DependencyType distinguishes called services from backing datastores.
type DependencyType string

const (
	DependencyService  DependencyType = "service"
	DependencyDatabase DependencyType = "database"
)

// Dependency is a downstream service or datastore called by a service.
// Impact is relative to the other dependencies returned by the same call.
type Dependency struct {
	Name      string         `json:"name"`
	Type      DependencyType `json:"type"`
	CallCount int            `json:"call_count"`
	AvgMs     float64        `json:"avg_ms"`
	ErrorRate float64        `json:"error_rate"`
	Impact    float64        `json:"impact"`
}

// OperationStats aggregates the traces rooted at one (service, operation) pair.
type OperationStats struct {
	ServiceName   string  `json:"service_name"`
	OperationName string  `json:"operation_name"`
	SpanCount     int     `json:"span_count"`
	ErrorCount    int     `json:"error_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	P50Ms         float64 `json:"p50_ms"`
	P99Ms         float64 `json:"p99_ms"`
	RPS           float64 `json:"rps"`
}

// SpanType is the category a span's time is attributed to.
type SpanType string

const (
	SpanTypeHTTP     SpanType = "http"
	SpanTypeDatabase SpanType = "database"
	SpanTypeOther    SpanType = "other"
)

// SpanTypeBreakdown is one category's share (0-100) of a service's span time.
type SpanTypeBreakdown struct {
	Type       SpanType `json:"type"`
	Percentage float64  `json:"percentage"`
}

// ErrorRatePoint is one sample of an error-rate series, as a percentage.
type ErrorRatePoint struct {
	Timestamp time.Time `json:"timestamp"`
	RatePct   float64   `json:"rate_pct"`
}

// OperationErrorRate ranks an operation by its share of failed traces (0-1).
type OperationErrorRate struct {
	ServiceName   string  `json:"service_name"`
	OperationName string  `json:"operation_name"`
	TotalCount    int     `json:"total_count"`
	ErrorCount    int     `json:"error_count"`
	ErrorRate     float64 `json:"error_rate"`
}
