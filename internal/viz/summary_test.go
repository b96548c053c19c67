package viz

import (
	"strings"
	"testing"
	"time"

	"github.com/tobert/trace-analytics/internal/analytics"
)

func TestOverview(t *testing.T) {
	result := Overview(StoreStats{SpanCount: 2500, Capacity: 10000, TraceCount: 1204, Truncated: true})

	for _, want := range []string{"Span Store", "[#####...............]", "2,500 / 10,000", "Traces   1,204", "truncated"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
}

func TestOverview_Empty(t *testing.T) {
	result := Overview(StoreStats{Capacity: 10000})
	if !strings.Contains(result, "[....................]") {
		t.Errorf("expected empty gauge, got:\n%s", result)
	}
	if strings.Contains(result, "truncated") {
		t.Errorf("did not expect truncation note, got:\n%s", result)
	}
}

func TestLatencyHistogram(t *testing.T) {
	buckets := analytics.BuildLatencyHistogram([]float64{45, 47, 1200, 30000})
	result := LatencyHistogram(buckets)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	if lines[0] != "Latency (ms, 4 traces)" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[1]), "40-50") {
		t.Errorf("expected first row to be the first populated bucket, got %q", lines[1])
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "30000-50000") {
		t.Errorf("expected last row to be the last populated bucket, got %q", lines[len(lines)-1])
	}
	if !strings.Contains(result, "#################### 2") {
		t.Errorf("expected the fullest bucket to get a full bar, got:\n%s", result)
	}
	if !strings.Contains(result, "75-100") {
		t.Errorf("expected empty buckets inside the range to be kept, got:\n%s", result)
	}
}

func TestLatencyHistogram_Empty(t *testing.T) {
	if got := LatencyHistogram(analytics.BuildLatencyHistogram(nil)); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestDependencies(t *testing.T) {
	result := Dependencies("checkout", []analytics.Dependency{
		{Name: "payments", Type: analytics.DependencyService, CallCount: 3, AvgMs: 5207.5, ErrorRate: 1.0 / 3, Impact: 1},
		{Name: "database:postgresql", Type: analytics.DependencyDatabase, CallCount: 3, AvgMs: 12, Impact: 0.5},
	})

	for _, want := range []string{"Dependencies of checkout (2)", "payments", "5.21s", "33.3%", "impact 1.00", "impact 0.50"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
	if Dependencies("checkout", nil) != "" {
		t.Error("expected empty string for no dependencies")
	}
}

func TestSpanTypes(t *testing.T) {
	result := SpanTypes("checkout", []analytics.SpanTypeBreakdown{
		{Type: analytics.SpanTypeHTTP, Percentage: 66.7},
		{Type: analytics.SpanTypeDatabase, Percentage: 33.3},
	})
	if !strings.Contains(result, "http") || !strings.Contains(result, " 66.7%") {
		t.Errorf("expected http share, got:\n%s", result)
	}
	if !strings.Contains(result, "database") || !strings.Contains(result, " 33.3%") {
		t.Errorf("expected database share, got:\n%s", result)
	}
}

func TestTraceTable(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	traces := []analytics.TraceSummary{
		{TraceID: "0123456789abcdef", RootService: "checkout", RootOperation: "POST /checkout", DurationMs: 45, StartTime: start},
		{TraceID: "fedcba9876543210", RootService: "checkout", RootOperation: "POST /checkout", DurationMs: 1200, HasError: true, StartTime: start.Add(time.Minute)},
	}

	result := TraceTable(traces, 0)
	for _, want := range []string{"Traces (2)", "✓ 01234567", "✗ fedcba98", "45ms", "1.20s", "09:01:00.000"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}

	limited := TraceTable(traces, 1)
	if strings.Contains(limited, "01234567") || !strings.Contains(limited, "1 older traces not shown") {
		t.Errorf("expected only the most recent trace, got:\n%s", limited)
	}
}

func TestOperationTable(t *testing.T) {
	ops := analytics.AggregateOperationStats([]analytics.Trace{
		{TraceID: "a", Spans: []analytics.Span{{TraceID: "a", SpanID: "1", ServiceName: "checkout", OperationName: "POST /checkout", DurationMs: 45, StartTime: t0}}},
	}, time.Minute)

	result := OperationTable(ops)
	for _, want := range []string{"Operations (1)", "checkout/POST /checkout", "100.0%", "0.02"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
}

func TestTopErrorsAndTrend(t *testing.T) {
	top := TopErrors([]analytics.OperationErrorRate{
		{ServiceName: "payments", OperationName: "charge", TotalCount: 4, ErrorCount: 1, ErrorRate: 0.25},
	})
	if !strings.Contains(top, "payments/charge") || !strings.Contains(top, "25.0%  1 of 4") {
		t.Errorf("unexpected top errors:\n%s", top)
	}

	trend := ErrorTrend([]analytics.ErrorRatePoint{{Timestamp: t0, RatePct: 50}})
	if !strings.Contains(trend, "09:00:00  ##########") || !strings.Contains(trend, " 50.0%") {
		t.Errorf("unexpected trend:\n%s", trend)
	}

	if TopErrors(nil) != "" || ErrorTrend(nil) != "" || OperationTable(nil) != "" || TraceTable(nil, 0) != "" {
		t.Error("expected empty output for empty input")
	}
}
