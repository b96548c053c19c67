package storage

import (
	"encoding/hex"
	"strconv"
	"time"

	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/trace-analytics/internal/analytics"
)

const unknownService = "unknown"

// Newer semantic convention names, checked after the v1.20 keys.
const (
	attrHTTPRequestMethod      = "http.request.method"
	attrHTTPResponseStatusCode = "http.response.status_code"
	attrURLPath                = "url.path"
	attrServiceNamespace       = "service.namespace"
)

// ConvertResourceSpans flattens OTLP resource spans into analytics spans.
// Resource attributes other than service.name are folded into each span's
// tags, with span attributes taking precedence on conflicts.
func ConvertResourceSpans(resourceSpans []*tracepb.ResourceSpans) []analytics.Span {
	var out []analytics.Span

	for _, rs := range resourceSpans {
		serviceName := extractServiceName(rs.GetResource())
		resourceAttrs := attributeMap(rs.GetResource().GetAttributes())
		namespace := firstOf(resourceAttrs, string(semconv.K8SNamespaceNameKey), attrServiceNamespace)
		delete(resourceAttrs, string(semconv.ServiceNameKey))

		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				out = append(out, convertSpan(span, serviceName, namespace, resourceAttrs))
			}
		}
	}

	return out
}

func convertSpan(span *tracepb.Span, service, namespace string, resourceAttrs map[string]string) analytics.Span {
	attrs := attributeMap(span.GetAttributes())

	tags := make(map[string]string, len(resourceAttrs)+len(attrs))
	for k, v := range resourceAttrs {
		tags[k] = v
	}
	for k, v := range attrs {
		tags[k] = v
	}

	out := analytics.Span{
		TraceID:       traceIDToString(span.GetTraceId()),
		SpanID:        spanIDToString(span.GetSpanId()),
		ParentSpanID:  spanIDToString(span.GetParentSpanId()),
		ServiceName:   service,
		OperationName: span.GetName(),
		Namespace:     namespace,
		StartTime:     time.Unix(0, int64(span.GetStartTimeUnixNano())).UTC(),
		Status:        analytics.StatusOK,
		Tags:          tags,
	}

	if end, start := span.GetEndTimeUnixNano(), span.GetStartTimeUnixNano(); end > start {
		out.DurationMs = float64(end-start) / float64(time.Millisecond)
	}

	if span.GetStatus().GetCode() == tracepb.Status_STATUS_CODE_ERROR {
		out.Status = analytics.StatusError
	}

	if method := firstOf(attrs, string(semconv.HTTPMethodKey), attrHTTPRequestMethod); method != "" {
		out.HTTP = &analytics.HTTPAttributes{
			Method: method,
			Path:   firstOf(attrs, string(semconv.HTTPRouteKey), string(semconv.HTTPTargetKey), attrURLPath),
		}
		if code, err := strconv.Atoi(firstOf(attrs, string(semconv.HTTPStatusCodeKey), attrHTTPResponseStatusCode)); err == nil {
			out.HTTP.StatusCode = code
		}
	}

	if system, ok := attrs[string(semconv.DBSystemKey)]; ok {
		out.DB = &analytics.DBAttributes{
			System:    system,
			Name:      attrs[string(semconv.DBNameKey)],
			Statement: attrs[string(semconv.DBStatementKey)],
		}
	}

	return out
}

// extractServiceName extracts the service.name attribute from an OTLP resource.
// Returns "unknown" if the service name is not found.
func extractServiceName(resource *resourcepb.Resource) string {
	for _, attr := range resource.GetAttributes() {
		if attr.GetKey() == string(semconv.ServiceNameKey) {
			if sv := attr.GetValue().GetStringValue(); sv != "" {
				return sv
			}
		}
	}
	return unknownService
}

func attributeMap(attrs []*commonpb.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[kv.GetKey()] = attributeString(kv.GetValue())
	}
	return m
}

func firstOf(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := attrs[k]; v != "" {
			return v
		}
	}
	return ""
}

// attributeString renders scalar attribute values. Arrays, maps and bytes
// render as empty strings.
func attributeString(value *commonpb.AnyValue) string {
	switch v := value.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return v.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'f', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue)
	default:
		return ""
	}
}

// traceIDToString converts a trace ID byte array to a hex string.
func traceIDToString(traceID []byte) string {
	return hex.EncodeToString(traceID)
}

// spanIDToString converts a span ID byte array to a hex string. An empty ID
// yields "".
func spanIDToString(spanID []byte) string {
	return hex.EncodeToString(spanID)
}
