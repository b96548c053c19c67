package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/analytics"
)

// storeSpan builds a span for direct insertion via AddSpans.
func storeSpan(traceID, spanID, parentID, service string, offsetMs, durationMs float64) analytics.Span {
	return analytics.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentID,
		ServiceName:   service,
		OperationName: service + "-op",
		StartTime:     testStart.Add(time.Duration(offsetMs * float64(time.Millisecond))),
		DurationMs:    durationMs,
		Status:        analytics.StatusOK,
	}
}

func TestSpanStoreReceiveSpans(t *testing.T) {
	s := NewSpanStore(100, zap.NewNop())

	traceID := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	rs := resourceSpans("test-service",
		otlpSpan(traceID, []byte{1, 2, 3, 4, 5, 6, 7, 8}, nil, "test-span", 0, 10),
	)
	require.NoError(t, s.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{rs}))

	traces, err := s.QueryTraces(context.Background(), QueryFilter{})
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", traces[0].TraceID)
	assert.Equal(t, "test-service", traces[0].Spans[0].ServiceName)

	stats := s.Stats()
	assert.Equal(t, 1, stats.SpanCount)
	assert.Equal(t, 100, stats.Capacity)
	assert.Equal(t, 1, stats.TraceCount)
	assert.Equal(t, uint64(1), stats.SpansReceived)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestSpanStoreQueryOrderAndLimit(t *testing.T) {
	s := NewSpanStore(100, nil)
	s.AddSpans(
		storeSpan("c", "c1", "", "api", 300, 10),
		storeSpan("a", "a1", "", "api", 100, 10),
		storeSpan("b", "b1", "", "web", 200, 10),
		storeSpan("a", "a2", "a1", "db", 101, 5),
	)

	traces, err := s.QueryTraces(context.Background(), QueryFilter{})
	require.NoError(t, err)
	require.Len(t, traces, 3)
	assert.Equal(t, []string{"a", "b", "c"}, traceIDs(traces))
	assert.Len(t, traces[0].Spans, 2)

	traces, err = s.QueryTraces(context.Background(), QueryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, traceIDs(traces), "limit keeps the most recent")

	traces, err = s.QueryTraces(context.Background(), QueryFilter{Service: "db"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, traceIDs(traces))
}

func TestSpanStoreInvalidFilter(t *testing.T) {
	s := NewSpanStore(10, nil)
	_, err := s.QueryTraces(context.Background(), QueryFilter{Status: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestSpanStoreCancelledContext(t *testing.T) {
	s := NewSpanStore(10, nil)
	s.AddSpans(storeSpan("a", "a1", "", "api", 0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.QueryTraces(ctx, QueryFilter{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Services(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpanStoreEvictionShrinksIndex(t *testing.T) {
	s := NewSpanStore(3, nil)
	s.AddSpans(
		storeSpan("a", "a1", "", "api", 0, 10),
		storeSpan("a", "a2", "a1", "db", 1, 5),
		storeSpan("b", "b1", "", "api", 20, 10),
	)
	assert.Equal(t, 2, s.Stats().TraceCount)

	s.AddSpans(storeSpan("c", "c1", "", "api", 40, 10))
	got := s.GetSpansByTraceID("a")
	require.Len(t, got, 1, "oldest span of trace a was evicted")
	assert.Equal(t, "a2", got[0].SpanID)

	s.AddSpans(storeSpan("d", "d1", "", "api", 60, 10))
	assert.Nil(t, s.GetSpansByTraceID("a"))

	stats := s.Stats()
	assert.Equal(t, 3, stats.SpanCount)
	assert.Equal(t, 3, stats.TraceCount)
	assert.Equal(t, uint64(5), stats.SpansReceived)
}

func TestSpanStoreServices(t *testing.T) {
	s := NewSpanStore(10, nil)
	s.AddSpans(
		storeSpan("a", "a1", "", "web", 0, 10),
		storeSpan("a", "a2", "a1", "api", 1, 5),
		storeSpan("b", "b1", "", "api", 2, 5),
	)
	services, err := s.Services(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web"}, services)
}

func TestSpanStoreClear(t *testing.T) {
	s := NewSpanStore(10, nil)
	s.AddSpans(storeSpan("a", "a1", "", "api", 0, 10))
	s.Clear()

	traces, err := s.QueryTraces(context.Background(), QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, traces)
	assert.Zero(t, s.Stats().TraceCount)
}

func TestSpanStoreSubscribe(t *testing.T) {
	s := NewSpanStore(10, nil)
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.AddSpans(storeSpan("a", "a1", "", "api", 0, 10))
	s.AddSpans(storeSpan("b", "b1", "", "api", 0, 10))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}

	select {
	case <-ch:
		t.Fatal("notifications should coalesce")
	default:
	}
	assert.Equal(t, uint64(2), s.Generation())
}

func TestSpanStoreSnapshotIsolation(t *testing.T) {
	s := NewSpanStore(10, nil)
	s.AddSpans(storeSpan("a", "a1", "", "api", 0, 10))

	traces, err := s.QueryTraces(context.Background(), QueryFilter{})
	require.NoError(t, err)
	traces[0].Spans[0].ServiceName = "mutated"

	again, err := s.QueryTraces(context.Background(), QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, "api", again[0].Spans[0].ServiceName)
}

func TestSpanStoreConcurrent(t *testing.T) {
	s := NewSpanStore(500, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("t-%d-%d", w, i)
				s.AddSpans(storeSpan(id, id+"-root", "", "api", float64(i), 10))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				traces, err := s.QueryTraces(ctx, QueryFilter{Service: "api"})
				assert.NoError(t, err)
				for _, tr := range traces {
					assert.NotEmpty(t, tr.Spans)
				}
			}
		}()
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, 500, stats.SpanCount)
	assert.Equal(t, 500, stats.TraceCount)
	assert.Equal(t, uint64(800), stats.SpansReceived)
}

func traceIDs(traces []analytics.Trace) []string {
	ids := make([]string, len(traces))
	for i, t := range traces {
		ids[i] = t.TraceID
	}
	return ids
}
