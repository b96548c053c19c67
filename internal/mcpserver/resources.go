package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/trace-analytics/internal/analytics"
	"github.com/tobert/trace-analytics/internal/storage"
)

// registerResources registers all MCP resources.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "analytics://services",
		Name:        "services",
		Description: "Service names currently present in the span store.",
		MIMEType:    "text/plain",
	}, s.handleServicesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "analytics://boundaries",
		Name:        "boundaries",
		Description: "The fixed latency histogram boundary table, in milliseconds.",
		MIMEType:    "text/plain",
	}, s.handleBoundariesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "analytics://status",
		Name:        "status",
		Description: "Span store occupancy, spans received, generation and the per-query trace cap.",
		MIMEType:    "text/plain",
	}, s.handleStatusResource)
}

func (s *Server) handleServicesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	res, err := s.queries.Services(ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Services (%d)\n", len(res.Data))
	b.WriteString("════════════\n")
	if len(res.Data) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, svc := range res.Data {
		fmt.Fprintf(&b, "  • %s\n", svc)
	}

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleBoundariesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	empty := analytics.BuildLatencyHistogram(nil)

	var b strings.Builder
	fmt.Fprintf(&b, "Latency Buckets (%d)\n", len(empty))
	b.WriteString("═══════════════════\n")
	for _, bucket := range empty {
		fmt.Fprintf(&b, "  %s\n", bucket.Label)
	}
	b.WriteString("\n  Traces faster than the first boundary are not counted.\n")

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats := s.store.Stats()

	var b strings.Builder
	b.WriteString("Span Store\n")
	b.WriteString("══════════\n")
	fmt.Fprintf(&b, "  Spans:      %s / %s (%s)\n",
		fmtNum(stats.SpanCount), fmtNum(stats.Capacity), fmtPct(stats.SpanCount, stats.Capacity))
	fmt.Fprintf(&b, "  Traces:     %s\n", fmtNum(stats.TraceCount))
	fmt.Fprintf(&b, "  Received:   %s\n", fmtNum(int(stats.SpansReceived)))
	fmt.Fprintf(&b, "  Generation: %d\n", stats.Generation)
	fmt.Fprintf(&b, "  Query cap:  %s traces\n", fmtNum(s.queries.MaxTraces()))
	fmt.Fprintf(&b, "  Endpoint:   %s\n", s.receiver.Endpoint())

	return textResult(req.Params.URI, b.String()), nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}
}

// fmtNum formats an integer with comma separators (e.g. 10,000).
func fmtNum(n int) string {
	if n < 0 {
		return "-" + fmtNum(-n)
	}
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// fmtPct formats a percentage like "62%" or "100%".
func fmtPct(count, capacity int) string {
	if capacity == 0 {
		return "─"
	}
	return fmt.Sprintf("%.0f%%", float64(count)/float64(capacity)*100)
}

var _ StatsSource = (*storage.SpanStore)(nil)
