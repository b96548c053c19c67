package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tobert/trace-analytics/internal/storage"
)

// parseFilter reads the shared filter query parameters. All parse failures
// wrap storage.ErrInvalidFilter.
func parseFilter(r *http.Request) (storage.QueryFilter, error) {
	q := r.URL.Query()

	f := storage.QueryFilter{
		Service:   q.Get("service"),
		Operation: q.Get("operation"),
		Namespace: q.Get("namespace"),
		Status:    q.Get("status"),
	}

	var err error
	if f.MinDurationMs, err = parseFloatPtr(q.Get("min_duration_ms"), "min_duration_ms"); err != nil {
		return f, err
	}
	if f.MaxDurationMs, err = parseFloatPtr(q.Get("max_duration_ms"), "max_duration_ms"); err != nil {
		return f, err
	}
	if f.Start, err = parseTime(q.Get("start"), "start"); err != nil {
		return f, err
	}
	if f.End, err = parseTime(q.Get("end"), "end"); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Tags, err = storage.ParseTags(q["tag"]); err != nil {
		return f, err
	}

	return f, f.Validate()
}

func parseFloatPtr(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %q is not a number", storage.ErrInvalidFilter, name, raw)
	}
	return &v, nil
}

func parseTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %q is not an RFC3339 time", storage.ErrInvalidFilter, name, raw)
	}
	return t, nil
}

func parseInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s: %q is not a non-negative integer", storage.ErrInvalidFilter, name, raw)
	}
	return n, nil
}

func parseDuration(r *http.Request, name string) (time.Duration, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s: %q is not a duration", storage.ErrInvalidFilter, name, raw)
	}
	return d, nil
}
