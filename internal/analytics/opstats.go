package analytics

import (
	"math"
	"sort"
	"time"
)

// DefaultObservationWindow is used for RPS when neither the caller nor the
// batch itself provides a usable time span.
const DefaultObservationWindow = time.Minute

type opKey struct {
	service   string
	operation string
}

type opAccumulator struct {
	durations []float64
	errors    int
	totalMs   float64
}

// Percentile returns the nearest-rank percentile of an ascending slice: the
// element at index floor(n*q), clamped to the last element. No interpolation
// is performed. Returns 0 for an empty slice.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	i := int(math.Floor(float64(n) * q))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return sorted[i]
}

// AggregateOperationStats groups traces by root service and root operation and
// computes volume, error and latency statistics for each group.
//
// RPS is count divided by window. A non-positive window falls back to the time
// span the batch covers, then to DefaultObservationWindow; either way the rate
// is an estimate.
func AggregateOperationStats(traces []Trace, window time.Duration) []OperationStats {
	summaries := SummarizeAll(traces)

	groups := make(map[opKey]*opAccumulator)
	for _, s := range summaries {
		k := opKey{service: s.RootService, operation: s.RootOperation}
		a, ok := groups[k]
		if !ok {
			a = &opAccumulator{}
			groups[k] = a
		}
		a.durations = append(a.durations, s.DurationMs)
		a.totalMs += s.DurationMs
		if s.HasError {
			a.errors++
		}
	}

	result := make([]OperationStats, 0, len(groups))
	if len(groups) == 0 {
		return result
	}

	seconds := effectiveWindow(summaries, window).Seconds()

	for k, a := range groups {
		sort.Float64s(a.durations)
		count := len(a.durations)

		stats := OperationStats{
			ServiceName:   k.service,
			OperationName: k.operation,
			SpanCount:     count,
			ErrorCount:    a.errors,
			P50Ms:         Percentile(a.durations, 0.50),
			P99Ms:         Percentile(a.durations, 0.99),
		}
		if count > 0 {
			stats.SuccessRate = float64(count-a.errors) / float64(count)
			stats.AvgDurationMs = a.totalMs / float64(count)
		}
		if seconds > 0 {
			stats.RPS = float64(count) / seconds
		}
		result = append(result, stats)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SpanCount != result[j].SpanCount {
			return result[i].SpanCount > result[j].SpanCount
		}
		if result[i].ServiceName != result[j].ServiceName {
			return result[i].ServiceName < result[j].ServiceName
		}
		return result[i].OperationName < result[j].OperationName
	})

	return result
}

// effectiveWindow picks the observation window used for RPS.
func effectiveWindow(summaries []TraceSummary, window time.Duration) time.Duration {
	if window > 0 {
		return window
	}

	var first, last time.Time
	for i, s := range summaries {
		end := s.StartTime.Add(time.Duration(s.DurationMs * float64(time.Millisecond)))
		if i == 0 || s.StartTime.Before(first) {
			first = s.StartTime
		}
		if i == 0 || end.After(last) {
			last = end
		}
	}
	if observed := last.Sub(first); observed > 0 {
		return observed
	}
	return DefaultObservationWindow
}
