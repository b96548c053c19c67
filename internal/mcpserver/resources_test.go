package mcpserver

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readReq(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func readText(t *testing.T, result *mcp.ReadResourceResult) string {
	t.Helper()
	require.Len(t, result.Contents, 1)
	return result.Contents[0].Text
}

func TestServicesResource(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleServicesResource(ctx, readReq("analytics://services"))
	require.NoError(t, err)
	text := readText(t, result)
	assert.Contains(t, text, "Services (3)")
	assert.Contains(t, text, "• checkout")
	assert.Contains(t, text, "• inventory")
	assert.Contains(t, text, "• payments")
	assert.Equal(t, "analytics://services", result.Contents[0].URI)

	store.Clear()
	result, err = srv.handleServicesResource(ctx, readReq("analytics://services"))
	require.NoError(t, err)
	assert.Contains(t, readText(t, result), "(none)")
}

func TestBoundariesResource(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleBoundariesResource(context.Background(), readReq("analytics://boundaries"))
	require.NoError(t, err)
	text := readText(t, result)
	assert.Contains(t, text, "Latency Buckets (25)")
	assert.Contains(t, text, "  1-2\n")
	assert.Contains(t, text, "  50000+\n")
}

func TestStatusResource(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleStatusResource(context.Background(), readReq("analytics://status"))
	require.NoError(t, err)
	text := readText(t, result)
	assert.Contains(t, text, "Spans:      9 / 100 (9%)")
	assert.Contains(t, text, "Traces:     3")
	assert.Contains(t, text, "Generation: 3")
	assert.Contains(t, text, "Query cap:  5,000 traces")
	assert.Contains(t, text, "Endpoint:   127.0.0.1:4317")
}

func TestFmtNum(t *testing.T) {
	for n, want := range map[int]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		10000:    "10,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	} {
		assert.Equal(t, want, fmtNum(n), n)
	}
	assert.Equal(t, "─", fmtPct(1, 0))
	assert.Equal(t, "50%", fmtPct(5, 10))
}
