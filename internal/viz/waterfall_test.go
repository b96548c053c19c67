package viz

import (
	"strings"
	"testing"
	"time"

	"github.com/tobert/trace-analytics/internal/analytics"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func wspan(id, parent, service, op string, startMs, durMs float64) analytics.Span {
	return analytics.Span{
		TraceID:       "aabbccdd",
		SpanID:        id,
		ParentSpanID:  parent,
		ServiceName:   service,
		OperationName: op,
		StartTime:     t0.Add(time.Duration(startMs * float64(time.Millisecond))),
		DurationMs:    durMs,
		Status:        analytics.StatusOK,
	}
}

func trace(spans ...analytics.Span) analytics.Trace {
	return analytics.Trace{TraceID: spans[0].TraceID, Spans: spans}
}

// displayCol returns the display column (rune index) of the first occurrence of r.
func displayCol(s string, r rune) int {
	col := 0
	for _, c := range s {
		if c == r {
			return col
		}
		col++
	}
	return -1
}

func TestWaterfall_Empty(t *testing.T) {
	if got := Waterfall(nil, 80); got != "" {
		t.Errorf("expected empty string for nil input, got %q", got)
	}
}

func TestWaterfall_ParentChild(t *testing.T) {
	result := Waterfall([]analytics.Trace{trace(
		wspan("root", "", "api", "GET /users", 0, 500),
		wspan("c1", "root", "db", "query", 10, 90),
		wspan("c2", "root", "cache", "get", 5, 10),
	)}, 80)

	if !strings.Contains(result, "Trace aabbcc (3 spans, 500ms)") {
		t.Errorf("expected trace header, got:\n%s", result)
	}
	if !strings.Contains(result, "├─ cache.get") || !strings.Contains(result, "└─ db.query") {
		t.Errorf("expected children ordered by start with connectors, got:\n%s", result)
	}
}

func TestWaterfall_ErrorSpan(t *testing.T) {
	s := wspan("s1", "", "svc", "op", 0, 1)
	s.Status = analytics.StatusError
	result := Waterfall([]analytics.Trace{trace(s)}, 80)
	if !strings.Contains(result, "!! ERR") {
		t.Errorf("expected error indicator, got:\n%s", result)
	}
}

func TestWaterfall_Alignment(t *testing.T) {
	result := Waterfall([]analytics.Trace{trace(
		wspan("root", "", "svc", "root", 0, 60_000),
		wspan("c1", "root", "svc", "c1", 100, 0.001),
	)}, 80)
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), result)
	}
	if c1, c2 := displayCol(lines[1], '['), displayCol(lines[2], '['); c1 != c2 {
		t.Errorf("mismatched alignment: %d vs %d\n%s", c1, c2, result)
	}
}

func TestWaterfall_OrphansAndCycles(t *testing.T) {
	result := Waterfall([]analytics.Trace{trace(
		wspan("s1", "missing", "svc", "orphan", 0, 100),
		wspan("a", "b", "svc", "loop-a", 10, 10),
		wspan("b", "a", "svc", "loop-b", 20, 10),
	)}, 80)
	for _, want := range []string{"svc.orphan", "svc.loop-a", "svc.loop-b"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q to be rendered, got:\n%s", want, result)
		}
	}
}

func TestWaterfall_LongNamesFitWidth(t *testing.T) {
	result := Waterfall([]analytics.Trace{trace(
		wspan("s1", "", "my-very-long-service-name", "GET /api/v1/users/search/by-email", 0, 1),
	)}, 80)
	for _, line := range strings.Split(result, "\n") {
		if n := len([]rune(line)); n > 80 {
			t.Errorf("line too long (%d cols): %q", n, line)
		}
	}
}

func TestWaterfall_OverflowTraces(t *testing.T) {
	var traces []analytics.Trace
	for i := 0; i < 7; i++ {
		s := wspan("s", "", "svc", "op", float64(i*100), 50)
		s.TraceID = string(rune('a' + i))
		traces = append(traces, trace(s))
	}
	if result := Waterfall(traces, 80); !strings.Contains(result, "+2 more traces") {
		t.Errorf("expected overflow message, got:\n%s", result)
	}
}

func TestWaterfall_NegativeDuration(t *testing.T) {
	result := Waterfall([]analytics.Trace{trace(wspan("s1", "", "svc", "op", 0, -5))}, 80)
	if !strings.Contains(result, "0ns") {
		t.Errorf("expected 0ns for bad span timing, got:\n%s", result)
	}
	if !strings.Contains(result, "####################") {
		t.Errorf("expected full bar for zero-length trace, got:\n%s", result)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0ns"},
		{500, "0µs"},
		{5 * time.Microsecond, "5µs"},
		{1500 * time.Microsecond, "2ms"},
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{time.Minute, "60.0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.expected)
		}
	}
}
