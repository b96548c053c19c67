package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/trace-analytics/internal/analytics"
	"github.com/tobert/trace-analytics/internal/storage"
)

// FilterInput is the optional trace filter every analytics tool accepts.
type FilterInput struct {
	ServiceName   string            `json:"service_name,omitempty" jsonschema:"Only traces with a span from this service"`
	Operation     string            `json:"operation,omitempty" jsonschema:"Only traces with a span of this operation name"`
	Namespace     string            `json:"namespace,omitempty" jsonschema:"Only traces with a span in this namespace"`
	Status        string            `json:"status,omitempty" jsonschema:"ok or error"`
	MinDurationMs *float64          `json:"min_duration_ms,omitempty" jsonschema:"Minimum root span duration in milliseconds"`
	MaxDurationMs *float64          `json:"max_duration_ms,omitempty" jsonschema:"Maximum root span duration in milliseconds"`
	Start         string            `json:"start,omitempty" jsonschema:"Earliest root start time (RFC3339)"`
	End           string            `json:"end,omitempty" jsonschema:"Latest root start time (RFC3339)"`
	Tags          map[string]string `json:"tags,omitempty" jsonschema:"Attributes one span must carry, all of them"`
	Limit         int               `json:"limit,omitempty" jsonschema:"Keep only the N most recent matching traces (0 = all)"`
}

// toQueryFilter converts tool input to a store filter. Errors wrap
// storage.ErrInvalidFilter.
func (in FilterInput) toQueryFilter() (storage.QueryFilter, error) {
	f := storage.QueryFilter{
		Service:       in.ServiceName,
		Operation:     in.Operation,
		Namespace:     in.Namespace,
		Status:        in.Status,
		MinDurationMs: in.MinDurationMs,
		MaxDurationMs: in.MaxDurationMs,
		Tags:          in.Tags,
		Limit:         in.Limit,
	}

	var err error
	if f.Start, err = parseRFC3339("start", in.Start); err != nil {
		return f, err
	}
	if f.End, err = parseRFC3339("end", in.End); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func parseRFC3339(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339: %v", storage.ErrInvalidFilter, name, err)
	}
	return t, nil
}

func parseWindow(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s must be a duration like 30s or 5m", storage.ErrInvalidFilter, name)
	}
	return d, nil
}

// Meta describes how much data a view was computed from.
type Meta struct {
	TraceCount int  `json:"trace_count" jsonschema:"Number of traces aggregated"`
	Truncated  bool `json:"truncated" jsonschema:"True when the per-query trace cap dropped older traces"`
}

// Tool 1: get_otlp_endpoint

type GetOTLPEndpointInput struct{}

type GetOTLPEndpointOutput struct {
	Endpoint        string            `json:"endpoint" jsonschema:"OTLP gRPC endpoint address for traces"`
	Protocol        string            `json:"protocol" jsonschema:"Protocol type (grpc)"`
	EnvironmentVars map[string]string `json:"environment_vars" jsonschema:"Suggested environment variables for configuring applications"`
}

func (s *Server) handleGetOTLPEndpoint(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetOTLPEndpointInput,
) (*mcp.CallToolResult, GetOTLPEndpointOutput, error) {
	endpoint := s.receiver.Endpoint()
	return &mcp.CallToolResult{}, GetOTLPEndpointOutput{
		Endpoint: endpoint,
		Protocol: "grpc",
		EnvironmentVars: map[string]string{
			"OTEL_EXPORTER_OTLP_ENDPOINT": endpoint,
			"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
			"OTEL_TRACES_EXPORTER":        "otlp",
		},
	}, nil
}

// Tool 2: summarize_traces

type SummarizeTracesInput struct {
	Filter FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

// TraceSummary is a trace summary with its start time rendered as RFC3339.
type TraceSummary struct {
	TraceID       string  `json:"trace_id"`
	RootService   string  `json:"root_service"`
	RootOperation string  `json:"root_operation"`
	DurationMs    float64 `json:"duration_ms"`
	HasError      bool    `json:"has_error"`
	StartTime     string  `json:"start_time" jsonschema:"Root span start (RFC3339, nanosecond precision)"`
}

type SummarizeTracesOutput struct {
	Meta Meta `json:"meta"`

	Traces []TraceSummary `json:"traces"`
}

func (s *Server) handleSummarizeTraces(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SummarizeTracesInput,
) (*mcp.CallToolResult, SummarizeTracesOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, SummarizeTracesOutput{}, err
	}
	res, err := s.queries.Summaries(ctx, f)
	if err != nil {
		return nil, SummarizeTracesOutput{}, err
	}

	out := SummarizeTracesOutput{
		Meta:   Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Traces: make([]TraceSummary, 0, len(res.Data)),
	}
	for _, ts := range res.Data {
		out.Traces = append(out.Traces, TraceSummary{
			TraceID:       ts.TraceID,
			RootService:   ts.RootService,
			RootOperation: ts.RootOperation,
			DurationMs:    ts.DurationMs,
			HasError:      ts.HasError,
			StartTime:     formatTime(ts.StartTime),
		})
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 3: latency_histogram

type LatencyHistogramInput struct {
	Filter FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

type LatencyHistogramOutput struct {
	Meta Meta `json:"meta"`

	Buckets []analytics.LatencyBucket `json:"buckets" jsonschema:"Every bucket of the fixed boundary table, including empty ones"`
}

func (s *Server) handleLatencyHistogram(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LatencyHistogramInput,
) (*mcp.CallToolResult, LatencyHistogramOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, LatencyHistogramOutput{}, err
	}
	res, err := s.queries.LatencyHistogram(ctx, f)
	if err != nil {
		return nil, LatencyHistogramOutput{}, err
	}
	return &mcp.CallToolResult{}, LatencyHistogramOutput{
		Meta:    Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Buckets: res.Data,
	}, nil
}

// Tool 4: dependency_graph

type DependencyGraphInput struct {
	Service string      `json:"service" jsonschema:"Service whose downstream calls to report"`
	Filter  FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

type DependencyGraphOutput struct {
	Meta Meta `json:"meta"`

	Service      string                 `json:"service"`
	Dependencies []analytics.Dependency `json:"dependencies" jsonschema:"Downstream services and databases, heaviest first; impact is relative to the heaviest"`
}

func (s *Server) handleDependencyGraph(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DependencyGraphInput,
) (*mcp.CallToolResult, DependencyGraphOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, DependencyGraphOutput{}, err
	}
	res, err := s.queries.Dependencies(ctx, input.Service, f)
	if err != nil {
		return nil, DependencyGraphOutput{}, err
	}
	return &mcp.CallToolResult{}, DependencyGraphOutput{
		Meta:         Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Service:      input.Service,
		Dependencies: res.Data,
	}, nil
}

// Tool 5: span_type_breakdown

type SpanTypeBreakdownInput struct {
	Service string      `json:"service" jsonschema:"Service whose own span time to classify"`
	Filter  FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

type SpanTypeBreakdownOutput struct {
	Meta Meta `json:"meta"`

	Service   string                        `json:"service"`
	Breakdown []analytics.SpanTypeBreakdown `json:"breakdown" jsonschema:"Share of span time per category (http, database, other)"`
}

func (s *Server) handleSpanTypeBreakdown(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SpanTypeBreakdownInput,
) (*mcp.CallToolResult, SpanTypeBreakdownOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, SpanTypeBreakdownOutput{}, err
	}
	res, err := s.queries.SpanTypes(ctx, input.Service, f)
	if err != nil {
		return nil, SpanTypeBreakdownOutput{}, err
	}
	return &mcp.CallToolResult{}, SpanTypeBreakdownOutput{
		Meta:      Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Service:   input.Service,
		Breakdown: res.Data,
	}, nil
}

// Tool 6: operation_stats

type OperationStatsInput struct {
	Window string      `json:"window,omitempty" jsonschema:"Observation window for RPS, e.g. 5m (default: time span of the data)"`
	Filter FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

type OperationStatsOutput struct {
	Meta Meta `json:"meta"`

	Operations []analytics.OperationStats `json:"operations" jsonschema:"Per root operation statistics, busiest first"`
}

func (s *Server) handleOperationStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OperationStatsInput,
) (*mcp.CallToolResult, OperationStatsOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, OperationStatsOutput{}, err
	}
	window, err := parseWindow("window", input.Window)
	if err != nil {
		return nil, OperationStatsOutput{}, err
	}
	res, err := s.queries.Operations(ctx, f, window)
	if err != nil {
		return nil, OperationStatsOutput{}, err
	}
	return &mcp.CallToolResult{}, OperationStatsOutput{
		Meta:       Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Operations: res.Data,
	}, nil
}

// Tool 7: error_rate_trend

type ErrorRateTrendInput struct {
	Bucket string      `json:"bucket,omitempty" jsonschema:"Bucket width such as 1m; empty gives a cumulative per-trace series"`
	Filter FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

// ErrorRatePoint is one point of the error-rate series.
type ErrorRatePoint struct {
	Timestamp string  `json:"timestamp" jsonschema:"RFC3339 time of the trace or bucket start"`
	RatePct   float64 `json:"rate_pct" jsonschema:"Error rate 0-100"`
}

type ErrorRateTrendOutput struct {
	Meta Meta `json:"meta"`

	Points []ErrorRatePoint `json:"points"`
}

func (s *Server) handleErrorRateTrend(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ErrorRateTrendInput,
) (*mcp.CallToolResult, ErrorRateTrendOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, ErrorRateTrendOutput{}, err
	}
	bucket, err := parseWindow("bucket", input.Bucket)
	if err != nil {
		return nil, ErrorRateTrendOutput{}, err
	}
	res, err := s.queries.ErrorTrend(ctx, f, bucket)
	if err != nil {
		return nil, ErrorRateTrendOutput{}, err
	}

	out := ErrorRateTrendOutput{
		Meta:   Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Points: make([]ErrorRatePoint, 0, len(res.Data)),
	}
	for _, p := range res.Data {
		out.Points = append(out.Points, ErrorRatePoint{Timestamp: formatTime(p.Timestamp), RatePct: p.RatePct})
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 8: top_error_operations

type TopErrorOperationsInput struct {
	K      int         `json:"k,omitempty" jsonschema:"How many operations to return (default 10)"`
	Filter FilterInput `json:"filter,omitempty" jsonschema:"Optional trace filter"`
}

type TopErrorOperationsOutput struct {
	Meta Meta `json:"meta"`

	Operations []analytics.OperationErrorRate `json:"operations" jsonschema:"Operations with at least one failed trace, worst first"`
}

func (s *Server) handleTopErrorOperations(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input TopErrorOperationsInput,
) (*mcp.CallToolResult, TopErrorOperationsOutput, error) {
	f, err := input.Filter.toQueryFilter()
	if err != nil {
		return nil, TopErrorOperationsOutput{}, err
	}
	if input.K < 0 {
		return nil, TopErrorOperationsOutput{}, fmt.Errorf("%w: k must not be negative", storage.ErrInvalidFilter)
	}
	res, err := s.queries.TopErrors(ctx, f, input.K)
	if err != nil {
		return nil, TopErrorOperationsOutput{}, err
	}
	return &mcp.CallToolResult{}, TopErrorOperationsOutput{
		Meta:       Meta{TraceCount: res.TraceCount, Truncated: res.Truncated},
		Operations: res.Data,
	}, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_otlp_endpoint",
		Description: "START HERE: Get the OTLP gRPC endpoint address. Set OTEL_EXPORTER_OTLP_ENDPOINT=<endpoint> when running instrumented programs so their traces reach this server.",
	}, s.handleGetOTLPEndpoint)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "summarize_traces",
		Description: "List one summary per trace (root service, root operation, duration, error flag), oldest first. Use the filter to narrow by service, status, duration or time range.",
	}, s.handleSummarizeTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "latency_histogram",
		Description: "Bucket trace durations into a fixed table from 1ms to 50s+. Good for spotting bimodal latency or long tails. Traces under 1ms are not counted.",
	}, s.handleLatencyHistogram)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "dependency_graph",
		Description: "Show which services and databases a service calls directly, with call counts, average latency, error rate and relative impact (1.0 = heaviest dependency in this result).",
	}, s.handleDependencyGraph)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "span_type_breakdown",
		Description: "Split a service's own span time into http, database and other work, as percentages.",
	}, s.handleSpanTypeBreakdown)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "operation_stats",
		Description: "Per root operation: count, errors, success rate, average/p50/p99 latency (nearest rank) and an RPS estimate over the given window.",
	}, s.handleOperationStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "error_rate_trend",
		Description: "Error rate over time. Without a bucket, a cumulative running rate with one point per trace; with a bucket (e.g. 1m), the rate inside each non-empty bucket.",
	}, s.handleErrorRateTrend)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "top_error_operations",
		Description: "Rank root operations by error rate and return the worst k. Operations without failures are omitted.",
	}, s.handleTopErrorOperations)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
