package demo

import (
	"context"
	"fmt"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultBatchSize is how many spans go into one export request.
const DefaultBatchSize = 500

// Exporter sends resource spans to an OTLP/gRPC trace endpoint.
type Exporter struct {
	conn      *grpc.ClientConn
	client    collectortrace.TraceServiceClient
	batchSize int
	logger    *zap.Logger
}

// NewExporter connects to endpoint (host:port) without TLS.
func NewExporter(endpoint string, logger *zap.Logger) (*Exporter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}

	return &Exporter{
		conn:      conn,
		client:    collectortrace.NewTraceServiceClient(conn),
		batchSize: DefaultBatchSize,
		logger:    logger.Named("demo"),
	}, nil
}

// Export sends resourceSpans in batches of at most DefaultBatchSize spans.
// It returns the number of spans the endpoint accepted.
func (e *Exporter) Export(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) (int, error) {
	sent := 0
	for _, batch := range Batch(resourceSpans, e.batchSize) {
		if _, err := e.client.Export(ctx, &collectortrace.ExportTraceServiceRequest{ResourceSpans: batch}); err != nil {
			return sent, fmt.Errorf("export: %w", err)
		}
		n := spanCount(batch)
		sent += n
		e.logger.Debug("exported batch", zap.Int("spans", n))
	}
	return sent, nil
}

// Close releases the connection.
func (e *Exporter) Close() error {
	return e.conn.Close()
}

// Batch splits resource spans into requests of at most size spans each,
// keeping every span under a copy of its resource and scope.
func Batch(resourceSpans []*tracepb.ResourceSpans, size int) [][]*tracepb.ResourceSpans {
	if size <= 0 {
		size = DefaultBatchSize
	}

	var (
		batches [][]*tracepb.ResourceSpans
		current []*tracepb.ResourceSpans
		n       int
	)
	flush := func() {
		if n > 0 {
			batches = append(batches, current)
		}
		current, n = nil, 0
	}

	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			spans := ss.GetSpans()
			for len(spans) > 0 {
				take := min(size-n, len(spans))
				current = append(current, &tracepb.ResourceSpans{
					Resource:  rs.GetResource(),
					SchemaUrl: rs.GetSchemaUrl(),
					ScopeSpans: []*tracepb.ScopeSpans{{
						Scope:     ss.GetScope(),
						SchemaUrl: ss.GetSchemaUrl(),
						Spans:     spans[:take],
					}},
				})
				n += take
				spans = spans[take:]
				if n == size {
					flush()
				}
			}
		}
	}
	flush()

	return batches
}

func spanCount(resourceSpans []*tracepb.ResourceSpans) int {
	n := 0
	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			n += len(ss.GetSpans())
		}
	}
	return n
}
