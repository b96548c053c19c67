package analytics

import "sort"

// Trace is the set of spans sharing one trace ID.
type Trace struct {
	TraceID string `json:"trace_id"`
	Spans   []Span `json:"spans"`
}

// Root returns the entry-point span of the trace.
//
// The root is the span without a parent. Malformed traces are tolerated: when
// several spans are parentless the earliest of them wins, and when none is
// parentless the earliest span overall wins. ok is false only for empty traces.
func (t Trace) Root() (root Span, ok bool) {
	if len(t.Spans) == 0 {
		return Span{}, false
	}

	best := -1
	for i, s := range t.Spans {
		if s.ParentSpanID != "" {
			continue
		}
		if best < 0 || earlier(s, t.Spans[best]) {
			best = i
		}
	}
	if best >= 0 {
		return t.Spans[best], true
	}

	best = 0
	for i := 1; i < len(t.Spans); i++ {
		if earlier(t.Spans[i], t.Spans[best]) {
			best = i
		}
	}
	return t.Spans[best], true
}

// DurationMs is the root span's duration.
func (t Trace) DurationMs() float64 {
	root, ok := t.Root()
	if !ok {
		return 0
	}
	return root.DurationMs
}

// HasError reports whether any span in the trace failed.
func (t Trace) HasError() bool {
	for _, s := range t.Spans {
		if s.IsError() {
			return true
		}
	}
	return false
}

// index maps span IDs to positions in t.Spans. Parent lookups go through the
// index; a dangling ParentSpanID simply has no entry.
func (t Trace) index() map[string]int {
	idx := make(map[string]int, len(t.Spans))
	for i, s := range t.Spans {
		if s.SpanID == "" {
			continue
		}
		if _, dup := idx[s.SpanID]; !dup {
			idx[s.SpanID] = i
		}
	}
	return idx
}

// parentOf returns the parent of t.Spans[i] if it is present in the trace.
func (t Trace) parentOf(idx map[string]int, i int) (Span, bool) {
	pid := t.Spans[i].ParentSpanID
	if pid == "" {
		return Span{}, false
	}
	p, ok := idx[pid]
	if !ok || p == i {
		return Span{}, false
	}
	return t.Spans[p], true
}

// GroupTraces groups a flat span list into traces, ordered by root start time
// and then trace ID. Spans keep their input order within a trace.
func GroupTraces(spans []Span) []Trace {
	byID := make(map[string]int)
	var traces []Trace

	for _, s := range spans {
		i, seen := byID[s.TraceID]
		if !seen {
			i = len(traces)
			byID[s.TraceID] = i
			traces = append(traces, Trace{TraceID: s.TraceID})
		}
		traces[i].Spans = append(traces[i].Spans, s)
	}

	SortTraces(traces)
	return traces
}

// SortTraces orders traces by root start time, then trace ID.
func SortTraces(traces []Trace) {
	starts := make(map[string]int64, len(traces))
	for _, t := range traces {
		if root, ok := t.Root(); ok {
			starts[t.TraceID] = root.StartTime.UnixNano()
		}
	}
	sort.SliceStable(traces, func(i, j int) bool {
		si, sj := starts[traces[i].TraceID], starts[traces[j].TraceID]
		if si != sj {
			return si < sj
		}
		return traces[i].TraceID < traces[j].TraceID
	})
}

func earlier(a, b Span) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.SpanID < b.SpanID
}
