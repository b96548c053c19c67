package analytics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidBoundaries is returned by NewBoundaries for an unusable table.
var ErrInvalidBoundaries = errors.New("invalid histogram boundaries")

// defaultBoundaries spans 1ms to 50s with finer steps below 100ms.
var defaultBoundaries = [...]float64{
	1, 2, 5, 10, 15, 20, 30, 40, 50, 75,
	100, 150, 200, 300, 500, 750,
	1000, 1500, 2000, 3000, 5000,
	10000, 20000, 30000, 50000,
}

// Boundaries is a validated, strictly increasing list of bucket lower bounds in
// milliseconds.
type Boundaries struct {
	bounds []float64
}

// DefaultBoundaries returns the fixed boundary table. The returned value owns
// its own copy of the table.
func DefaultBoundaries() Boundaries {
	b := make([]float64, len(defaultBoundaries))
	copy(b, defaultBoundaries[:])
	return Boundaries{bounds: b}
}

// NewBoundaries validates a custom boundary table.
func NewBoundaries(ms ...float64) (Boundaries, error) {
	if len(ms) == 0 {
		return Boundaries{}, fmt.Errorf("%w: table is empty", ErrInvalidBoundaries)
	}
	for i, v := range ms {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Boundaries{}, fmt.Errorf("%w: boundary %d is not finite", ErrInvalidBoundaries, i)
		}
		if i > 0 && v <= ms[i-1] {
			return Boundaries{}, fmt.Errorf("%w: boundary %d (%g) does not exceed %g", ErrInvalidBoundaries, i, v, ms[i-1])
		}
	}
	b := make([]float64, len(ms))
	copy(b, ms)
	return Boundaries{bounds: b}, nil
}

// Values returns a copy of the boundary values.
func (b Boundaries) Values() []float64 {
	out := make([]float64, len(b.bounds))
	copy(out, b.bounds)
	return out
}

// Len returns the number of buckets the table produces.
func (b Boundaries) Len() int {
	return len(b.bounds)
}

// BuildLatencyHistogram buckets durations using the default boundary table.
func BuildLatencyHistogram(durations []float64) []LatencyBucket {
	return BuildLatencyHistogramWith(durations, DefaultBoundaries())
}

// BuildLatencyHistogramWith buckets durations into the given table and returns
// every bucket in ascending order, including empty ones.
//
// A duration lands in the highest boundary it meets or exceeds. Durations
// below the first boundary are not counted at all: sub-floor latencies are
// treated as instant.
func BuildLatencyHistogramWith(durations []float64, b Boundaries) []LatencyBucket {
	buckets := make([]LatencyBucket, len(b.bounds))
	for i, lo := range b.bounds {
		buckets[i] = LatencyBucket{RangeStartMs: lo, Label: bucketLabel(b.bounds, i)}
		if i+1 < len(b.bounds) {
			hi := b.bounds[i+1]
			buckets[i].RangeEndMs = &hi
		}
	}

	for _, d := range durations {
		if i := bucketIndex(b.bounds, d); i >= 0 {
			buckets[i].Count++
		}
	}

	return buckets
}

// bucketIndex searches from the top boundary down. Returns -1 when d is below
// the floor or NaN.
func bucketIndex(bounds []float64, d float64) int {
	for i := len(bounds) - 1; i >= 0; i-- {
		if d >= bounds[i] {
			return i
		}
	}
	return -1
}

func bucketLabel(bounds []float64, i int) string {
	lo := formatMs(bounds[i])
	if i+1 == len(bounds) {
		return lo + "+"
	}
	return lo + "-" + formatMs(bounds[i+1])
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
