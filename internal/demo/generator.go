// Package demo generates a synthetic checkout workload and exports it over
// OTLP/gRPC, so a fresh server has something to analyze.
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// Namespace is the k8s namespace every demo service reports.
const Namespace = "shop"

// Config shapes the generated workload. Zero values select defaults.
type Config struct {
	Traces    int           // number of traces (default 100)
	Start     time.Time     // first trace start (default now minus Traces*Interval)
	Interval  time.Duration // gap between trace starts (default 100ms)
	ErrorRate float64       // probability that a payment fails (default 0.05)
	Seed      int64         // 0 seeds from the clock
}

// Generator produces OTLP resource spans for the demo topology:
//
//	checkout  POST /checkout
//	├─ redis      GET cart
//	├─ payments   POST /charge
//	└─ inventory  GET /stock
//	   └─ postgres SELECT stock
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// NewGenerator validates cfg and fills defaults.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Traces < 0 {
		return nil, fmt.Errorf("traces must not be negative")
	}
	if cfg.ErrorRate < 0 || cfg.ErrorRate > 1 || math.IsNaN(cfg.ErrorRate) {
		return nil, fmt.Errorf("error rate must be within [0, 1]")
	}
	if cfg.Traces == 0 {
		cfg.Traces = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.ErrorRate == 0 {
		cfg.ErrorRate = 0.05
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().Add(-time.Duration(cfg.Traces) * cfg.Interval)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

// Traces returns how many traces Generate produces.
func (g *Generator) Traces() int {
	return g.cfg.Traces
}

// Generate builds every trace and groups the spans by service resource.
func (g *Generator) Generate() []*tracepb.ResourceSpans {
	byService := make(map[string][]*tracepb.Span)
	for i := 0; i < g.cfg.Traces; i++ {
		start := g.cfg.Start.Add(time.Duration(i) * g.cfg.Interval)
		for _, s := range g.trace(start) {
			byService[s.service] = append(byService[s.service], s.span)
		}
	}

	out := make([]*tracepb.ResourceSpans, 0, len(byService))
	for _, service := range services {
		spans := byService[service]
		if len(spans) == 0 {
			continue
		}
		out = append(out, &tracepb.ResourceSpans{
			Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{
				stringAttr(string(semconv.ServiceNameKey), service),
				stringAttr(string(semconv.K8SNamespaceNameKey), Namespace),
			}},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: "trace-analytics/demo"},
				Spans: spans,
			}},
		})
	}
	return out
}

// services is the fixed resource order of Generate's output.
var services = []string{"checkout", "redis", "payments", "inventory", "postgres"}

type serviceSpan struct {
	service string
	span    *tracepb.Span
}

func (g *Generator) trace(start time.Time) []serviceSpan {
	traceID := g.id()
	rootID := g.id()[:8]

	failed := g.rng.Float64() < g.cfg.ErrorRate
	rootStatus, payStatus := 200, 200
	if failed {
		rootStatus, payStatus = 502, 500
	}

	cacheMs := g.latency(1.5, 0.4)
	cache := g.span(traceID, g.id()[:8], rootID, "GET cart", tracepb.Span_SPAN_KIND_CLIENT, start.Add(time.Millisecond), cacheMs,
		stringAttr(string(semconv.DBSystemKey), "redis"),
		stringAttr(string(semconv.DBStatementKey), "GET cart:*"))

	payStart := start.Add(time.Millisecond + ms(cacheMs))
	payMs := g.latency(120, 0.5)
	pay := g.span(traceID, g.id()[:8], rootID, "POST /charge", tracepb.Span_SPAN_KIND_SERVER, payStart, payMs,
		stringAttr(string(semconv.HTTPMethodKey), "POST"),
		stringAttr(string(semconv.HTTPRouteKey), "/charge"),
		intAttr(string(semconv.HTTPStatusCodeKey), payStatus))
	if failed {
		pay.Status = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR, Message: "card declined"}
	}

	invStart := payStart.Add(ms(payMs))
	dbMs := g.latency(8, 0.6)
	invMs := dbMs + g.latency(4, 0.3)
	inv := g.span(traceID, g.id()[:8], rootID, "GET /stock", tracepb.Span_SPAN_KIND_SERVER, invStart, invMs,
		stringAttr(string(semconv.HTTPMethodKey), "GET"),
		stringAttr(string(semconv.HTTPRouteKey), "/stock"),
		intAttr(string(semconv.HTTPStatusCodeKey), 200))

	db := g.span(traceID, g.id()[:8], inv.SpanId, "SELECT stock", tracepb.Span_SPAN_KIND_CLIENT, invStart.Add(ms(1)), dbMs,
		stringAttr(string(semconv.DBSystemKey), "postgresql"),
		stringAttr(string(semconv.DBNameKey), "inventory"),
		stringAttr(string(semconv.DBStatementKey), "SELECT qty FROM stock WHERE sku = $1"))

	rootMs := 1 + cacheMs + payMs + invMs + g.latency(3, 0.3)
	root := g.span(traceID, rootID, nil, "POST /checkout", tracepb.Span_SPAN_KIND_SERVER, start, rootMs,
		stringAttr(string(semconv.HTTPMethodKey), "POST"),
		stringAttr(string(semconv.HTTPRouteKey), "/checkout"),
		intAttr(string(semconv.HTTPStatusCodeKey), rootStatus))
	if failed {
		root.Status = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR}
	}

	return []serviceSpan{
		{"checkout", root},
		{"redis", cache},
		{"payments", pay},
		{"inventory", inv},
		{"postgres", db},
	}
}

func (g *Generator) span(traceID, spanID, parentID []byte, name string, kind tracepb.Span_SpanKind, start time.Time, durMs float64, attrs ...*commonpb.KeyValue) *tracepb.Span {
	return &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		ParentSpanId:      parentID,
		Name:              name,
		Kind:              kind,
		StartTimeUnixNano: uint64(start.UnixNano()),
		EndTimeUnixNano:   uint64(start.Add(ms(durMs)).UnixNano()),
		Attributes:        attrs,
	}
}

// id draws a random UUID from the seeded source so output is reproducible.
func (g *Generator) id() []byte {
	u, _ := uuid.NewRandomFromReader(g.rng) // reads from *rand.Rand never fail
	return u[:]
}

// latency draws from a log-normal distribution with the given median.
func (g *Generator) latency(medianMs, sigma float64) float64 {
	return medianMs * math.Exp(sigma*g.rng.NormFloat64())
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func intAttr(key string, value int) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(value)}}}
}
