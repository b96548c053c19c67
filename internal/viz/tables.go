package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/trace-analytics/internal/analytics"
)

// TraceTable renders one row per trace. limit > 0 keeps only the last limit
// rows, which are the most recent for start-ordered input.
func TraceTable(traces []analytics.TraceSummary, limit int) string {
	if len(traces) == 0 {
		return ""
	}
	hidden := 0
	if limit > 0 && len(traces) > limit {
		hidden = len(traces) - limit
		traces = traces[hidden:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Traces (%d)\n", len(traces)+hidden)
	if hidden > 0 {
		fmt.Fprintf(&b, "  ... %d older traces not shown\n", hidden)
	}

	for _, t := range traces {
		status := "✓"
		if t.HasError {
			status = "✗"
		}
		label := truncate(t.RootService+"/"+t.RootOperation, 40)
		fmt.Fprintf(&b, "  %s %-8s  %s%s  %9s  %s\n",
			status, shortID(t.TraceID),
			label, strings.Repeat(" ", 40-runeLen(label)),
			formatMs(t.DurationMs), t.StartTime.UTC().Format("15:04:05.000"))
	}
	return b.String()
}

// OperationTable renders per-operation statistics.
func OperationTable(ops []analytics.OperationStats) string {
	if len(ops) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Operations (%d)\n", len(ops))
	fmt.Fprintf(&b, "  %-40s  %6s  %6s  %7s  %9s  %9s  %9s  %8s\n",
		"Operation", "Count", "Errors", "Success", "Avg", "P50", "P99", "RPS")
	for _, op := range ops {
		label := truncate(op.ServiceName+"/"+op.OperationName, 40)
		fmt.Fprintf(&b, "  %s%s  %6d  %6d  %6.1f%%  %9s  %9s  %9s  %8.2f\n",
			label, strings.Repeat(" ", 40-runeLen(label)),
			op.SpanCount, op.ErrorCount, op.SuccessRate*100,
			formatMs(op.AvgDurationMs), formatMs(op.P50Ms), formatMs(op.P99Ms), op.RPS)
	}
	return b.String()
}

// TopErrors renders the operations with the highest error rate.
func TopErrors(ops []analytics.OperationErrorRate) string {
	if len(ops) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top Errors (%d)\n", len(ops))
	for _, op := range ops {
		label := truncate(op.ServiceName+"/"+op.OperationName, 40)
		fmt.Fprintf(&b, "  ✗ %s%s  %5.1f%%  %d of %d\n",
			label, strings.Repeat(" ", 40-runeLen(label)),
			op.ErrorRate*100, op.ErrorCount, op.TotalCount)
	}
	return b.String()
}

// ErrorTrend renders the error-rate series as one bar per point.
func ErrorTrend(points []analytics.ErrorRatePoint) string {
	if len(points) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error Rate (%d points)\n", len(points))
	for _, p := range points {
		fmt.Fprintf(&b, "  %s  %s %5.1f%%\n", p.Timestamp.UTC().Format("15:04:05"), bar(p.RatePct, 100), p.RatePct)
	}
	return b.String()
}
