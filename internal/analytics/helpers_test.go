package analytics

import "time"

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// span builds a span starting offsetMs after baseTime.
func span(traceID, spanID, parentID, service, op string, offsetMs, durationMs float64) Span {
	return Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentID,
		ServiceName:   service,
		OperationName: op,
		StartTime:     baseTime.Add(time.Duration(offsetMs * float64(time.Millisecond))),
		DurationMs:    durationMs,
		Status:        StatusOK,
	}
}

func failed(s Span) Span {
	s.Status = StatusError
	return s
}

func withHTTP(s Span, method, path string) Span {
	s.HTTP = &HTTPAttributes{Method: method, Path: path, StatusCode: 200}
	return s
}

func withDB(s Span, system string) Span {
	s.DB = &DBAttributes{System: system, Name: "app"}
	return s
}

// rootTrace builds a single-span trace rooted at service/op.
func rootTrace(traceID, service, op string, offsetMs, durationMs float64, isError bool) Trace {
	s := span(traceID, traceID+"-root", "", service, op, offsetMs, durationMs)
	if isError {
		s = failed(s)
	}
	return Trace{TraceID: traceID, Spans: []Span{s}}
}
