// Package viz renders analytics views as plain text for terminals.
package viz

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const barBudget = 20

// bar draws value scaled against maxValue, at least one cell when value > 0.
func bar(value, maxValue float64) string {
	n := 0
	if maxValue > 0 {
		n = int(value / maxValue * barBudget)
	}
	if n < 1 && value > 0 {
		n = 1
	}
	n = min(n, barBudget)
	return strings.Repeat("#", n) + strings.Repeat(" ", barBudget-n)
}

// gauge draws a fill-level bar like [#####...............].
func gauge(count, capacity int) string {
	filled := 0
	if capacity > 0 {
		filled = count * barBudget / capacity
	}
	filled = min(filled, barBudget)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barBudget-filled) + "]"
}

func truncate(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func formatCount(n int) string {
	if n < 1000 {
		return strconv.Itoa(n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1_000_000, (n%1_000_000)/1000, n%1000)
}

func formatMs(ms float64) string {
	switch {
	case ms >= 1000:
		return fmt.Sprintf("%.2fs", ms/1000)
	case ms >= 10:
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.1fms", ms)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
