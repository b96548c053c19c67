package analytics

import "math"

// ClassifySpan returns the category for a span. HTTP attributes take
// precedence over database attributes.
func ClassifySpan(s Span) SpanType {
	switch {
	case s.HTTP != nil:
		return SpanTypeHTTP
	case s.DB != nil:
		return SpanTypeDatabase
	default:
		return SpanTypeOther
	}
}

// ClassifySpanTypes reports how the time of service's own spans splits across
// HTTP, database and other work. Only non-zero categories are returned, in
// that fixed order, with percentages rounded to one decimal place. A service
// with no span time reports 100% other.
func ClassifySpanTypes(service string, traces []Trace) []SpanTypeBreakdown {
	var httpMs, dbMs, otherMs float64

	for _, t := range traces {
		for _, s := range t.Spans {
			if s.ServiceName != service {
				continue
			}
			switch ClassifySpan(s) {
			case SpanTypeHTTP:
				httpMs += s.DurationMs
			case SpanTypeDatabase:
				dbMs += s.DurationMs
			default:
				otherMs += s.DurationMs
			}
		}
	}

	total := httpMs + dbMs + otherMs
	if total <= 0 {
		return []SpanTypeBreakdown{{Type: SpanTypeOther, Percentage: 100}}
	}

	result := make([]SpanTypeBreakdown, 0, 3)
	for _, c := range []struct {
		typ SpanType
		ms  float64
	}{
		{SpanTypeHTTP, httpMs},
		{SpanTypeDatabase, dbMs},
		{SpanTypeOther, otherMs},
	} {
		if c.ms <= 0 {
			continue
		}
		result = append(result, SpanTypeBreakdown{
			Type:       c.typ,
			Percentage: round1(c.ms / total * 100),
		})
	}
	return result
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
