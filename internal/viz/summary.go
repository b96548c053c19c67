package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/trace-analytics/internal/analytics"
)

// StoreStats describes span store occupancy for the overview header.
type StoreStats struct {
	SpanCount  int
	Capacity   int
	TraceCount int
	Truncated  bool
}

// Overview renders the store fill level and how many traces were analyzed.
func Overview(stats StoreStats) string {
	var b strings.Builder

	b.WriteString("Span Store\n")
	fmt.Fprintf(&b, "  Spans    %s  %s / %s\n", gauge(stats.SpanCount, stats.Capacity),
		formatCount(stats.SpanCount), formatCount(stats.Capacity))
	fmt.Fprintf(&b, "  Traces   %s", formatCount(stats.TraceCount))
	if stats.Truncated {
		b.WriteString(" (truncated to the most recent)")
	}
	b.WriteByte('\n')

	return b.String()
}

// LatencyHistogram renders the non-empty range of buckets as horizontal bars.
// Empty buckets between the first and last populated one are kept so gaps
// stay visible.
func LatencyHistogram(buckets []analytics.LatencyBucket) string {
	first, last := -1, -1
	maxCount, total := 0, 0
	for i, bk := range buckets {
		if bk.Count == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		maxCount = max(maxCount, bk.Count)
		total += bk.Count
	}
	if first < 0 {
		return ""
	}

	labelW := 0
	for _, bk := range buckets[first : last+1] {
		labelW = max(labelW, len(bk.Label))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latency (ms, %d traces)\n", total)
	for _, bk := range buckets[first : last+1] {
		fmt.Fprintf(&b, "  %*s  %s %d\n", labelW, bk.Label, bar(float64(bk.Count), float64(maxCount)), bk.Count)
	}
	return b.String()
}

// Dependencies renders a service's downstream calls with impact bars.
func Dependencies(service string, deps []analytics.Dependency) string {
	if len(deps) == 0 {
		return ""
	}

	nameW := 4
	for _, d := range deps {
		nameW = max(nameW, runeLen(d.Name))
	}
	nameW = min(nameW, 30)

	var b strings.Builder
	fmt.Fprintf(&b, "Dependencies of %s (%d)\n", service, len(deps))
	for _, d := range deps {
		name := truncate(d.Name, nameW)
		fmt.Fprintf(&b, "  %s%s  %s  %5d calls  avg %8s  err %5.1f%%  impact %.2f\n",
			name, strings.Repeat(" ", nameW-runeLen(name)),
			bar(d.Impact, 1), d.CallCount, formatMs(d.AvgMs), d.ErrorRate*100, d.Impact)
	}
	return b.String()
}

// SpanTypes renders how a service's own span time splits by category.
func SpanTypes(service string, breakdown []analytics.SpanTypeBreakdown) string {
	if len(breakdown) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Span time of %s\n", service)
	for _, st := range breakdown {
		fmt.Fprintf(&b, "  %-8s  %s %5.1f%%\n", st.Type, bar(st.Percentage, 100), st.Percentage)
	}
	return b.String()
}
