package analytics

import "sort"

const databaseKeyPrefix = "database:"

// depAccumulator collects raw totals for one dependency key.
type depAccumulator struct {
	name    string
	typ     DependencyType
	calls   int
	errors  int
	totalMs float64
}

// BuildDependencyGraph returns the downstream dependencies called by service.
//
// A child span is attributed to service when its parent span, looked up by ID
// within the same trace, belongs to service and the child itself belongs to a
// different service. Children carrying database attributes are keyed by the
// datastore ("database:<system>") rather than by the calling service name.
//
// Impact is each dependency's total time divided by the largest total time in
// this result, so the heaviest dependency always scores exactly 1.0.
func BuildDependencyGraph(service string, traces []Trace) []Dependency {
	acc := make(map[string]*depAccumulator)

	for _, t := range traces {
		idx := t.index()
		for i, span := range t.Spans {
			if span.ServiceName == service {
				continue
			}
			parent, ok := t.parentOf(idx, i)
			if !ok || parent.ServiceName != service {
				continue
			}

			name, typ := dependencyKey(span)
			a, exists := acc[name]
			if !exists {
				a = &depAccumulator{name: name, typ: typ}
				acc[name] = a
			}
			a.calls++
			a.totalMs += span.DurationMs
			if span.IsError() {
				a.errors++
			}
		}
	}

	deps := make([]Dependency, 0, len(acc))
	if len(acc) == 0 {
		return deps
	}

	maxTotal := 0.0
	for _, a := range acc {
		if a.totalMs > maxTotal {
			maxTotal = a.totalMs
		}
	}

	for _, a := range acc {
		impact := 1.0
		if maxTotal > 0 {
			impact = a.totalMs / maxTotal
		}
		deps = append(deps, Dependency{
			Name:      a.name,
			Type:      a.typ,
			CallCount: a.calls,
			AvgMs:     a.totalMs / float64(a.calls),
			ErrorRate: float64(a.errors) / float64(a.calls),
			Impact:    impact,
		})
	}

	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Impact != deps[j].Impact {
			return deps[i].Impact > deps[j].Impact
		}
		return deps[i].Name < deps[j].Name
	})

	return deps
}

func dependencyKey(span Span) (string, DependencyType) {
	if span.DB != nil {
		system := span.DB.System
		if system == "" {
			system = "unknown"
		}
		return databaseKeyPrefix + system, DependencyDatabase
	}
	return span.ServiceName, DependencyService
}
