package storage

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tobert/trace-analytics/internal/analytics"
)

// ErrInvalidFilter is returned when a QueryFilter cannot be evaluated.
var ErrInvalidFilter = errors.New("invalid filter")

// Trace status filter values.
const (
	StatusFilterOK    = "ok"
	StatusFilterError = "error"
)

// QueryFilter selects traces from the store. Empty fields are ignored and
// all set fields must match (AND logic).
//
// Service, Operation and Namespace match when any span of the trace matches.
// Tags match when a single span carries all of them. Status and the duration
// bounds apply to the trace as a whole (HasError and root duration). Start and
// End bound the root span's start time, inclusive. Limit keeps only the N most
// recent matching traces.
type QueryFilter struct {
	Service   string
	Operation string
	Namespace string
	Tags      map[string]string
	Status    string

	MinDurationMs *float64
	MaxDurationMs *float64

	Start time.Time
	End   time.Time

	Limit int
}

// Validate reports whether the filter is well formed. Every failure wraps
// ErrInvalidFilter.
func (f QueryFilter) Validate() error {
	switch strings.ToLower(f.Status) {
	case "", StatusFilterOK, StatusFilterError:
	default:
		return fmt.Errorf("%w: status must be %q or %q, got %q", ErrInvalidFilter, StatusFilterOK, StatusFilterError, f.Status)
	}

	for _, d := range []struct {
		name string
		v    *float64
	}{{"min_duration_ms", f.MinDurationMs}, {"max_duration_ms", f.MaxDurationMs}} {
		if d.v != nil && (math.IsNaN(*d.v) || math.IsInf(*d.v, 0) || *d.v < 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidFilter, d.name)
		}
	}
	if f.MinDurationMs != nil && f.MaxDurationMs != nil && *f.MinDurationMs > *f.MaxDurationMs {
		return fmt.Errorf("%w: min_duration_ms %v exceeds max_duration_ms %v", ErrInvalidFilter, *f.MinDurationMs, *f.MaxDurationMs)
	}

	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidFilter,
			f.End.Format(time.RFC3339), f.Start.Format(time.RFC3339))
	}

	if f.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidFilter)
	}

	for k := range f.Tags {
		if k == "" {
			return fmt.Errorf("%w: tag key must not be empty", ErrInvalidFilter)
		}
	}

	return nil
}

// Matches reports whether trace t satisfies every set field of the filter.
// Limit is not considered here.
func (f QueryFilter) Matches(t analytics.Trace) bool {
	if f.Service != "" && !anySpan(t, func(s analytics.Span) bool { return s.ServiceName == f.Service }) {
		return false
	}
	if f.Operation != "" && !anySpan(t, func(s analytics.Span) bool { return s.OperationName == f.Operation }) {
		return false
	}
	if f.Namespace != "" && !anySpan(t, func(s analytics.Span) bool { return s.Namespace == f.Namespace }) {
		return false
	}
	if len(f.Tags) > 0 && !anySpan(t, f.hasTags) {
		return false
	}

	switch strings.ToLower(f.Status) {
	case StatusFilterOK:
		if t.HasError() {
			return false
		}
	case StatusFilterError:
		if !t.HasError() {
			return false
		}
	}

	if f.MinDurationMs == nil && f.MaxDurationMs == nil && f.Start.IsZero() && f.End.IsZero() {
		return true
	}

	root, ok := t.Root()
	if !ok {
		return false
	}
	if f.MinDurationMs != nil && root.DurationMs < *f.MinDurationMs {
		return false
	}
	if f.MaxDurationMs != nil && root.DurationMs > *f.MaxDurationMs {
		return false
	}
	if !f.Start.IsZero() && root.StartTime.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && root.StartTime.After(f.End) {
		return false
	}

	return true
}

// ParseTags turns "key=value" pairs into a tag filter map.
func ParseTags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	tags := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: tag %q must look like key=value", ErrInvalidFilter, p)
		}
		tags[k] = v
	}
	return tags, nil
}

func anySpan(t analytics.Trace, pred func(analytics.Span) bool) bool {
	for _, s := range t.Spans {
		if pred(s) {
			return true
		}
	}
	return false
}

// hasTags reports whether a single span carries every tag of the filter.
func (f QueryFilter) hasTags(s analytics.Span) bool {
	for k, want := range f.Tags {
		if got, ok := s.Tags[k]; !ok || got != want {
			return false
		}
	}
	return true
}
