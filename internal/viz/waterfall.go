package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tobert/trace-analytics/internal/analytics"
)

const (
	maxSpansPerTrace = 50
	maxTraces        = 5
	defaultBarWidth  = 20
	defaultWidth     = 80
)

// Waterfall renders an ASCII waterfall for each trace, in the order given.
// Width controls the total line width; 0 uses a sensible default (80).
func Waterfall(traces []analytics.Trace, width int) string {
	if len(traces) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}

	overflow := 0
	if len(traces) > maxTraces {
		overflow = len(traces) - maxTraces
		traces = traces[:maxTraces]
	}

	var b strings.Builder
	for i, t := range traces {
		if len(t.Spans) == 0 {
			continue
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		renderTrace(&b, t, width)
	}

	if overflow > 0 {
		fmt.Fprintf(&b, "\n... +%d more traces\n", overflow)
	}

	return b.String()
}

func renderTrace(b *strings.Builder, t analytics.Trace, width int) {
	spans := make([]analytics.Span, len(t.Spans))
	copy(spans, t.Spans)
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartTime.Before(spans[j].StartTime)
	})

	minStart := spans[0].StartTime
	maxEnd := minStart
	for _, s := range spans {
		if end := spanEnd(s); end.After(maxEnd) {
			maxEnd = end
		}
	}
	totalDur := maxEnd.Sub(minStart)

	tree := buildTree(spans)

	id := t.TraceID
	if len(id) > 6 {
		id = id[:6]
	}
	fmt.Fprintf(b, "Trace %s (%d spans, %s)\n", id, len(spans), formatDuration(totalDur))

	spanOverflow := 0
	if len(tree) > maxSpansPerTrace {
		spanOverflow = len(tree) - maxSpansPerTrace
		tree = tree[:maxSpansPerTrace]
	}

	// Widest duration plus error marker, so the right edge lines up.
	maxDurErrLen := 0
	for _, entry := range tree {
		n := len(formatDuration(spanEnd(entry.span).Sub(entry.span.StartTime)))
		if entry.span.IsError() {
			n += len(errMarker)
		}
		maxDurErrLen = max(maxDurErrLen, n)
	}

	for _, entry := range tree {
		renderSpanRow(b, entry, minStart, totalDur, width, maxDurErrLen)
	}

	if spanOverflow > 0 {
		fmt.Fprintf(b, "  ... +%d more spans\n", spanOverflow)
	}
}

const errMarker = " !! ERR"

type treeEntry struct {
	span   analytics.Span
	depth  int
	isLast []bool // at each depth level, whether this node is the last child
}

// buildTree orders spans depth-first. Spans whose parent is missing from the
// trace are rendered as additional roots. Input must be sorted by start time.
func buildTree(spans []analytics.Span) []treeEntry {
	byID := make(map[string]analytics.Span, len(spans))
	for _, s := range spans {
		byID[s.SpanID] = s
	}

	children := make(map[string][]string)
	var roots []string
	for _, s := range spans {
		if _, ok := byID[s.ParentSpanID]; s.ParentSpanID == "" || !ok || s.ParentSpanID == s.SpanID {
			roots = append(roots, s.SpanID)
			continue
		}
		children[s.ParentSpanID] = append(children[s.ParentSpanID], s.SpanID)
	}

	visited := make(map[string]bool, len(spans))
	var result []treeEntry
	for i, id := range roots {
		walkTree(&result, byID, children, visited, id, 0, []bool{i == len(roots)-1})
	}
	// Parent cycles leave spans unreachable from any root.
	for _, s := range spans {
		walkTree(&result, byID, children, visited, s.SpanID, 0, []bool{true})
	}
	return result
}

func walkTree(result *[]treeEntry, byID map[string]analytics.Span, children map[string][]string, visited map[string]bool, spanID string, depth int, isLast []bool) {
	if visited[spanID] {
		return
	}
	visited[spanID] = true
	*result = append(*result, treeEntry{span: byID[spanID], depth: depth, isLast: isLast})

	kids := children[spanID]
	for i, childID := range kids {
		childIsLast := append(append([]bool{}, isLast...), i == len(kids)-1)
		walkTree(result, byID, children, visited, childID, depth+1, childIsLast)
	}
}

func renderSpanRow(b *strings.Builder, entry treeEntry, minStart time.Time, totalDur time.Duration, width, maxDurErrLen int) {
	// Tree-drawing characters are multi-byte UTF-8 but occupy one display
	// column each, so columns are counted separately from bytes.
	var prefix strings.Builder
	prefixCols := 1
	prefix.WriteString(" ")
	for d := 0; d < entry.depth; d++ {
		if d < len(entry.isLast)-1 {
			if entry.isLast[d] {
				prefix.WriteString("  ")
			} else {
				prefix.WriteString("│ ")
			}
			prefixCols += 2
		}
	}
	if entry.depth > 0 {
		if entry.isLast[len(entry.isLast)-1] {
			prefix.WriteString("└─ ")
		} else {
			prefix.WriteString("├─ ")
		}
		prefixCols += 3
	}

	label := entry.span.ServiceName + "." + entry.span.OperationName

	errSuffix := ""
	if entry.span.IsError() {
		errSuffix = errMarker
	}

	start := entry.span.StartTime.Sub(minStart)
	end := spanEnd(entry.span).Sub(minStart)

	// Layout: prefix + label + " [" + bar + "] " + durErr
	fixedCols := prefixCols + 2 + defaultBarWidth + 2 + maxDurErrLen
	labelBudget := max(width-fixedCols, 8)
	label = truncate(label, labelBudget)
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-runeLen(label)))

	bar := buildBar(start, end, totalDur, defaultBarWidth)

	durErr := formatDuration(end-start) + errSuffix
	paddedDurErr := durErr + strings.Repeat(" ", max(0, maxDurErrLen-len(durErr)))

	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix.String(), paddedLabel, bar, paddedDurErr)
}

// buildBar marks [start, end) of totalDur on a bar of barWidth columns.
func buildBar(start, end, totalDur time.Duration, barWidth int) string {
	if totalDur <= 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int(int64(start) * int64(barWidth) / int64(totalDur))
	endPos := int(int64(end) * int64(barWidth) / int64(totalDur))

	startPos = min(max(startPos, 0), barWidth-1)
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

// spanEnd clamps negative durations to zero.
func spanEnd(s analytics.Span) time.Time {
	end := s.EndTime()
	if end.Before(s.StartTime) {
		return s.StartTime
	}
	return end
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0ns"
	}
	us := float64(d) / float64(time.Microsecond)
	if us < 1000 {
		return fmt.Sprintf("%.0fµs", us)
	}
	ms := us / 1000
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}
