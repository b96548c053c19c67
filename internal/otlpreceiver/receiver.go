// Package otlpreceiver accepts OTLP trace exports over gRPC and hands the
// resource spans to a SpanReceiver.
package otlpreceiver

import (
	"context"
	"fmt"
	"net"
	"sync"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultMaxRecvMsgSize matches the OpenTelemetry Collector's gRPC default.
const DefaultMaxRecvMsgSize = 16 << 20

// SpanReceiver is the interface for storing received spans.
// Implementations should be thread-safe as Export may be called concurrently.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error
}

// Config holds configuration for the OTLP receiver.
type Config struct {
	Host           string // e.g., "127.0.0.1"
	Port           int    // 0 for ephemeral port assignment
	MaxRecvMsgSize int    // bytes; 0 selects DefaultMaxRecvMsgSize
	Logger         *zap.Logger
}

// Server is the OTLP gRPC server that receives trace data.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	logger     *zap.Logger
	stopOnce   sync.Once
	stopChan   chan struct{}
	stopDone   chan struct{}
}

// NewServer creates a new OTLP gRPC server.
// The server will bind to the configured host and port (use port 0 for ephemeral).
// Received spans are passed to the SpanReceiver implementation.
func NewServer(cfg Config, receiver SpanReceiver) (*Server, error) {
	if receiver == nil {
		return nil, fmt.Errorf("span receiver cannot be nil")
	}
	if cfg.MaxRecvMsgSize <= 0 {
		cfg.MaxRecvMsgSize = DefaultMaxRecvMsgSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logger := cfg.Logger.Named("otlp")
	grpcServer := grpc.NewServer(grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	collectortrace.RegisterTraceServiceServer(grpcServer, &traceService{
		receiver: receiver,
		logger:   logger,
	})

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		logger:     logger,
		stopChan:   make(chan struct{}),
		stopDone:   make(chan struct{}, 1),
	}, nil
}

// Start begins serving OTLP requests. This method blocks until Stop is called
// or ctx is cancelled. It should typically be run in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	s.logger.Info("otlp receiver listening", zap.String("endpoint", s.Endpoint()))
	err := s.grpcServer.Serve(s.listener)
	s.stopDone <- struct{}{}
	return err
}

// Stop initiates graceful shutdown of the server.
// Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		close(s.stopChan)
		s.logger.Info("otlp receiver stopped")
	})
}

// StopWait stops the server and waits for Start to return.
func (s *Server) StopWait() {
	s.Stop()
	<-s.stopDone
}

// Endpoint returns the actual listening address, e.g. "127.0.0.1:54321".
// This is particularly useful when using ephemeral ports (port 0).
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// traceService implements the OTLP TraceService gRPC interface.
type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	receiver SpanReceiver
	logger   *zap.Logger
}

// Export handles incoming trace export requests from OTLP clients.
func (t *traceService) Export(
	ctx context.Context,
	req *collectortrace.ExportTraceServiceRequest,
) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}

	if err := t.receiver.ReceiveSpans(ctx, req.GetResourceSpans()); err != nil {
		t.logger.Warn("failed to store spans", zap.Error(err))
		return nil, status.Errorf(codes.Unavailable, "failed to receive spans: %v", err)
	}

	t.logger.Debug("export",
		zap.Int("resource_spans", len(req.GetResourceSpans())),
		zap.Int("spans", countSpans(req.GetResourceSpans())))

	return &collectortrace.ExportTraceServiceResponse{}, nil
}

func countSpans(resourceSpans []*tracepb.ResourceSpans) int {
	n := 0
	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			n += len(ss.GetSpans())
		}
	}
	return n
}
