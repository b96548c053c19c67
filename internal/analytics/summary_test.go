package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRoot(t *testing.T) {
	tests := []struct {
		name   string
		spans  []Span
		wantID string
		wantOK bool
	}{
		{
			name:   "empty trace",
			wantOK: false,
		},
		{
			name: "single parentless span",
			spans: []Span{
				span("t1", "child", "root", "api", "db", 5, 10),
				span("t1", "root", "", "api", "GET /", 0, 50),
			},
			wantID: "root",
			wantOK: true,
		},
		{
			name: "several parentless spans picks earliest",
			spans: []Span{
				span("t1", "late", "", "api", "b", 20, 10),
				span("t1", "early", "", "api", "a", 10, 10),
			},
			wantID: "early",
			wantOK: true,
		},
		{
			name: "no parentless span falls back to earliest overall",
			spans: []Span{
				span("t1", "b", "missing", "api", "b", 30, 10),
				span("t1", "a", "missing", "api", "a", 15, 10),
			},
			wantID: "a",
			wantOK: true,
		},
		{
			name: "start time tie broken by span ID",
			spans: []Span{
				span("t1", "zz", "", "api", "b", 0, 10),
				span("t1", "aa", "", "api", "a", 0, 10),
			},
			wantID: "aa",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, ok := Trace{TraceID: "t1", Spans: tt.spans}.Root()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, root.SpanID)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	trace := Trace{
		TraceID: "abc",
		Spans: []Span{
			failed(span("abc", "c1", "r", "payments", "charge", 10, 80)),
			span("abc", "r", "", "checkout", "POST /checkout", 0, 120),
		},
	}

	summary := Summarize(trace)
	assert.Equal(t, "abc", summary.TraceID)
	assert.Equal(t, "checkout", summary.RootService)
	assert.Equal(t, "POST /checkout", summary.RootOperation)
	assert.Equal(t, 120.0, summary.DurationMs)
	assert.True(t, summary.HasError, "a failed child must surface on the trace")
	assert.Equal(t, baseTime, summary.StartTime)
}

func TestSummarizeUsesRootDurationNotMaxEnd(t *testing.T) {
	trace := Trace{
		TraceID: "t",
		Spans: []Span{
			span("t", "r", "", "api", "GET", 0, 10),
			span("t", "c", "r", "worker", "async", 5, 500),
		},
	}
	assert.Equal(t, 10.0, Summarize(trace).DurationMs)
}

func TestSummarizeEmptyTrace(t *testing.T) {
	summary := Summarize(Trace{TraceID: "empty"})
	assert.Equal(t, TraceSummary{TraceID: "empty"}, summary)
}

func TestSummarizeTracesGroupsAndOrders(t *testing.T) {
	spans := []Span{
		span("t2", "r2", "", "api", "GET /b", 100, 5),
		span("t1", "r1", "", "api", "GET /a", 0, 7),
		failed(span("t2", "c2", "r2", "db", "query", 101, 2)),
	}

	summaries := SummarizeTraces(spans)
	require.Len(t, summaries, 2)
	assert.Equal(t, "t1", summaries[0].TraceID)
	assert.False(t, summaries[0].HasError)
	assert.Equal(t, "t2", summaries[1].TraceID)
	assert.True(t, summaries[1].HasError)
}

func TestSummarizeTracesEmpty(t *testing.T) {
	summaries := SummarizeTraces(nil)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestGroupTracesKeepsSpanOrder(t *testing.T) {
	spans := []Span{
		span("t", "a", "", "api", "root", 0, 10),
		span("t", "b", "a", "api", "child", 1, 1),
		span("t", "c", "a", "api", "child", 2, 1),
	}
	traces := GroupTraces(spans)
	require.Len(t, traces, 1)
	ids := []string{traces[0].Spans[0].SpanID, traces[0].Spans[1].SpanID, traces[0].Spans[2].SpanID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestDurations(t *testing.T) {
	got := Durations([]TraceSummary{{DurationMs: 3}, {DurationMs: 1.5}})
	assert.Equal(t, []float64{3, 1.5}, got)
}
