package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func totalCount(t *testing.T, buckets []LatencyBucket) int {
	t.Helper()
	n := 0
	for _, b := range buckets {
		require.GreaterOrEqual(t, b.Count, 0)
		n += b.Count
	}
	return n
}

func TestDefaultBoundariesMonotonic(t *testing.T) {
	bounds := DefaultBoundaries().Values()
	require.NotEmpty(t, bounds)
	assert.Equal(t, 1.0, bounds[0])
	assert.Equal(t, 50000.0, bounds[len(bounds)-1])
	for i := 1; i < len(bounds); i++ {
		assert.Greater(t, bounds[i], bounds[i-1], "boundary %d must exceed boundary %d", i, i-1)
	}
}

func TestDefaultBoundariesIsACopy(t *testing.T) {
	b := DefaultBoundaries().Values()
	b[0] = 999
	assert.Equal(t, 1.0, DefaultBoundaries().Values()[0])
}

func TestBucketsDoNotOverlap(t *testing.T) {
	buckets := BuildLatencyHistogram(nil)
	require.Len(t, buckets, DefaultBoundaries().Len())

	for i := 0; i < len(buckets)-1; i++ {
		require.NotNil(t, buckets[i].RangeEndMs)
		assert.Equal(t, buckets[i+1].RangeStartMs, *buckets[i].RangeEndMs)
		assert.Less(t, buckets[i].RangeStartMs, *buckets[i].RangeEndMs)
	}
	last := buckets[len(buckets)-1]
	assert.Nil(t, last.RangeEndMs, "final bucket is open-ended")
	assert.Equal(t, "50000+", last.Label)
	assert.Equal(t, "1-2", buckets[0].Label)
}

func TestHistogramConservation(t *testing.T) {
	durations := []float64{1, 1.9, 2, 45, 99.99, 100, 1200, 30000, 49999, 50000, 3600000}
	buckets := BuildLatencyHistogram(durations)
	assert.Equal(t, len(durations), totalCount(t, buckets))
}

func TestHistogramExcludesBelowFloor(t *testing.T) {
	durations := []float64{0, 0.2, 0.999, -4, math.NaN(), 1, 5}
	buckets := BuildLatencyHistogram(durations)
	assert.Equal(t, 2, totalCount(t, buckets), "only durations >= 1ms are counted")
}

func TestHistogramAssignment(t *testing.T) {
	tests := []struct {
		duration  float64
		wantStart float64
	}{
		{1, 1},
		{1.5, 1},
		{2, 2},
		{74.9, 50},
		{75, 75},
		{999, 750},
		{30000, 30000},
		{50000, 50000},
		{1e9, 50000},
	}

	for _, tt := range tests {
		buckets := BuildLatencyHistogram([]float64{tt.duration})
		found := false
		for _, b := range buckets {
			if b.Count == 1 {
				found = true
				assert.Equal(t, tt.wantStart, b.RangeStartMs, "duration %v", tt.duration)
			}
		}
		assert.True(t, found, "duration %v should be counted", tt.duration)
	}
}

func TestHistogramEmptyInput(t *testing.T) {
	buckets := BuildLatencyHistogram([]float64{})
	assert.Len(t, buckets, DefaultBoundaries().Len())
	assert.Equal(t, 0, totalCount(t, buckets))
}

func TestNewBoundaries(t *testing.T) {
	b, err := NewBoundaries(10, 100, 1000)
	require.NoError(t, err)

	buckets := BuildLatencyHistogramWith([]float64{5, 10, 150, 5000}, b)
	require.Len(t, buckets, 3)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, 1, buckets[1].Count)
	assert.Equal(t, 1, buckets[2].Count)
	assert.Equal(t, "1000+", buckets[2].Label)

	for _, bad := range [][]float64{
		{},
		{10, 10},
		{10, 5},
		{1, math.Inf(1)},
		{math.NaN()},
	} {
		_, err := NewBoundaries(bad...)
		assert.ErrorIs(t, err, ErrInvalidBoundaries, "table %v", bad)
	}
}

func TestHistogramIdempotent(t *testing.T) {
	durations := []float64{3, 40, 40, 700, 12000}
	assert.Equal(t, BuildLatencyHistogram(durations), BuildLatencyHistogram(durations))
}
