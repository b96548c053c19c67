package analytics

import (
	"sort"
	"time"
)

// DefaultTopK is the number of operations TopErrorOperations returns when the
// caller does not ask for a specific count.
const DefaultTopK = 10

// sortByStart returns a copy of summaries in ascending start order, ties by
// trace ID.
func sortByStart(summaries []TraceSummary) []TraceSummary {
	sorted := make([]TraceSummary, len(summaries))
	copy(sorted, summaries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].TraceID < sorted[j].TraceID
	})
	return sorted
}

// BuildErrorRateTrend emits one point per trace, in start-time order, carrying
// the cumulative error percentage of every trace seen so far. The running rate
// damps early noise and lags real changes.
func BuildErrorRateTrend(summaries []TraceSummary) []ErrorRatePoint {
	sorted := sortByStart(summaries)
	points := make([]ErrorRatePoint, 0, len(sorted))

	errorCount := 0
	for i, s := range sorted {
		if s.HasError {
			errorCount++
		}
		points = append(points, ErrorRatePoint{
			Timestamp: s.StartTime,
			RatePct:   float64(errorCount) / float64(i+1) * 100,
		})
	}
	return points
}

// BuildBucketedErrorRate groups traces into fixed time buckets and emits the
// error percentage of each non-empty bucket, stamped with the bucket's start.
// A non-positive bucket width returns the cumulative series instead.
func BuildBucketedErrorRate(summaries []TraceSummary, bucket time.Duration) []ErrorRatePoint {
	if bucket <= 0 {
		return BuildErrorRateTrend(summaries)
	}

	sorted := sortByStart(summaries)
	points := make([]ErrorRatePoint, 0)

	var current time.Time
	total, errs := 0, 0
	flush := func() {
		if total == 0 {
			return
		}
		points = append(points, ErrorRatePoint{
			Timestamp: current,
			RatePct:   float64(errs) / float64(total) * 100,
		})
	}

	for _, s := range sorted {
		start := s.StartTime.Truncate(bucket)
		if total > 0 && !start.Equal(current) {
			flush()
			total, errs = 0, 0
		}
		current = start
		total++
		if s.HasError {
			errs++
		}
	}
	flush()

	return points
}

// TopErrorOperations ranks (root service, root operation) pairs by error rate
// and returns at most k of them. Operations without any failures are left out.
// k <= 0 means DefaultTopK.
func TopErrorOperations(summaries []TraceSummary, k int) []OperationErrorRate {
	if k <= 0 {
		k = DefaultTopK
	}

	type counts struct{ total, errors int }
	groups := make(map[opKey]*counts)
	for _, s := range summaries {
		key := opKey{service: s.RootService, operation: s.RootOperation}
		c, ok := groups[key]
		if !ok {
			c = &counts{}
			groups[key] = c
		}
		c.total++
		if s.HasError {
			c.errors++
		}
	}

	result := make([]OperationErrorRate, 0, len(groups))
	for key, c := range groups {
		if c.errors == 0 {
			continue
		}
		result = append(result, OperationErrorRate{
			ServiceName:   key.service,
			OperationName: key.operation,
			TotalCount:    c.total,
			ErrorCount:    c.errors,
			ErrorRate:     float64(c.errors) / float64(c.total),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.ErrorRate != b.ErrorRate {
			return a.ErrorRate > b.ErrorRate
		}
		if a.ErrorCount != b.ErrorCount {
			return a.ErrorCount > b.ErrorCount
		}
		if a.ServiceName != b.ServiceName {
			return a.ServiceName < b.ServiceName
		}
		return a.OperationName < b.OperationName
	})

	if len(result) > k {
		result = result[:k]
	}
	return result
}
