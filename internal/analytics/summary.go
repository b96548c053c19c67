package analytics

// Summarize reduces a trace to its summary record. It never fails: a trace
// without a clear root gets a best-effort summary, and an empty trace yields a
// summary carrying only the trace ID.
func Summarize(t Trace) TraceSummary {
	summary := TraceSummary{
		TraceID:  t.TraceID,
		HasError: t.HasError(),
	}

	root, ok := t.Root()
	if !ok {
		return summary
	}

	summary.RootService = root.ServiceName
	summary.RootOperation = root.OperationName
	summary.DurationMs = root.DurationMs
	summary.StartTime = root.StartTime
	return summary
}

// SummarizeAll summarizes each trace, preserving order.
func SummarizeAll(traces []Trace) []TraceSummary {
	result := make([]TraceSummary, 0, len(traces))
	for _, t := range traces {
		result = append(result, Summarize(t))
	}
	return result
}

// SummarizeTraces groups a flat span list into traces and summarizes them.
func SummarizeTraces(spans []Span) []TraceSummary {
	return SummarizeAll(GroupTraces(spans))
}

// Durations extracts the trace durations from a list of summaries.
func Durations(summaries []TraceSummary) []float64 {
	result := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, s.DurationMs)
	}
	return result
}
