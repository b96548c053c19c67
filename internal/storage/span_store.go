package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/analytics"
)

// DefaultSpanCapacity is the ring buffer size used when none is configured.
const DefaultSpanCapacity = 10_000

// SpanStore holds the most recent spans in a ring buffer and indexes them by
// trace ID. It implements otlpreceiver.SpanReceiver.
//
// Spans and their Tags, HTTP and DB blocks are immutable once stored; queries
// copy span slices but share those blocks.
type SpanStore struct {
	mu         sync.RWMutex // protects spans and traceIndex together
	spans      *RingBuffer[analytics.Span]
	traceIndex map[string][]analytics.Span // trace_id -> spans in arrival order

	generation atomic.Uint64

	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64

	logger *zap.Logger
}

// NewSpanStore creates a span store holding at most capacity spans.
func NewSpanStore(capacity int, logger *zap.Logger) *SpanStore {
	if capacity <= 0 {
		capacity = DefaultSpanCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SpanStore{
		spans:       NewRingBuffer[analytics.Span](capacity),
		traceIndex:  make(map[string][]analytics.Span),
		subscribers: make(map[uint64]chan struct{}),
		logger:      logger.Named("store"),
	}
	s.spans.OnEvict(s.evict)
	return s
}

// evict drops an overwritten span from the trace index. The ring buffer
// evicts in arrival order, so the span is always the first entry of its trace.
// Called with s.mu held for writing.
func (s *SpanStore) evict(span analytics.Span) {
	entries := s.traceIndex[span.TraceID]
	if len(entries) <= 1 {
		delete(s.traceIndex, span.TraceID)
		return
	}
	s.traceIndex[span.TraceID] = entries[1:]
}

// ReceiveSpans implements otlpreceiver.SpanReceiver.
func (s *SpanStore) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	s.AddSpans(ConvertResourceSpans(resourceSpans)...)
	return nil
}

// AddSpans stores already-converted spans and notifies subscribers.
func (s *SpanStore) AddSpans(spans ...analytics.Span) {
	if len(spans) == 0 {
		return
	}

	s.mu.Lock()
	for _, span := range spans {
		s.spans.Add(span)
		s.traceIndex[span.TraceID] = append(s.traceIndex[span.TraceID], span)
	}
	s.mu.Unlock()

	gen := s.generation.Add(1)
	s.logger.Debug("stored spans", zap.Int("count", len(spans)), zap.Uint64("generation", gen))
	s.notifySubscribers()
}

// QueryTraces returns the traces matching filter, ordered by root start time
// (oldest first). With filter.Limit > 0 only the most recent traces are kept.
//
// The matching span slices are copied under a single read lock, so the result
// is a consistent snapshot even while spans are arriving.
func (s *SpanStore) QueryTraces(ctx context.Context, filter QueryFilter) ([]analytics.Trace, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	traces, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	matched := traces[:0]
	for _, t := range traces {
		if filter.Matches(t) {
			matched = append(matched, t)
		}
	}

	analytics.SortTraces(matched)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched, nil
}

func (s *SpanStore) snapshot(ctx context.Context) ([]analytics.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traces := make([]analytics.Trace, 0, len(s.traceIndex))
	for id, spans := range s.traceIndex {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp := make([]analytics.Span, len(spans))
		copy(cp, spans)
		traces = append(traces, analytics.Trace{TraceID: id, Spans: cp})
	}
	return traces, nil
}

// Services returns the distinct service names of all stored spans, sorted.
func (s *SpanStore) Services(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, spans := range s.traceIndex {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, span := range spans {
			seen[span.ServiceName] = struct{}{}
		}
	}

	services := make([]string, 0, len(seen))
	for name := range seen {
		services = append(services, name)
	}
	sort.Strings(services)
	return services, nil
}

// GetSpansByTraceID returns a copy of the spans for a trace ID, or nil.
func (s *SpanStore) GetSpansByTraceID(traceID string) []analytics.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spans := s.traceIndex[traceID]
	if len(spans) == 0 {
		return nil
	}
	result := make([]analytics.Span, len(spans))
	copy(result, spans)
	return result
}

// Stats returns current storage statistics.
func (s *SpanStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		SpanCount:     s.spans.Size(),
		Capacity:      s.spans.Capacity(),
		TraceCount:    len(s.traceIndex),
		SpansReceived: uint64(s.spans.CurrentPosition()),
		Generation:    s.generation.Load(),
	}
}

// Generation increments once per stored batch.
func (s *SpanStore) Generation() uint64 {
	return s.generation.Load()
}

// Clear removes all stored spans and resets the trace index.
func (s *SpanStore) Clear() {
	s.mu.Lock()
	s.spans.Clear()
	s.traceIndex = make(map[string][]analytics.Span)
	s.mu.Unlock()

	s.generation.Add(1)
	s.notifySubscribers()
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel is buffered with capacity 1 so rapid updates coalesce into one
// pending signal.
func (s *SpanStore) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++

	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	unsubscribe := func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}

	return ch, unsubscribe
}

func (s *SpanStore) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// StoreStats contains statistics about span storage.
type StoreStats struct {
	SpanCount     int    `json:"span_count"`
	Capacity      int    `json:"capacity"`
	TraceCount    int    `json:"trace_count"`
	SpansReceived uint64 `json:"spans_received"`
	Generation    uint64 `json:"generation"`
}
