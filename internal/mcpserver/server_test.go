package mcpserver

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/analytics"
	"github.com/tobert/trace-analytics/internal/query"
	"github.com/tobert/trace-analytics/internal/storage"
)

type fakeReceiver string

func (f fakeReceiver) Endpoint() string { return string(f) }

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func span(traceID, spanID, parentID, service, op string, offset time.Duration, durationMs float64) analytics.Span {
	return analytics.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentID,
		ServiceName:   service,
		OperationName: op,
		StartTime:     baseTime.Add(offset),
		DurationMs:    durationMs,
		Status:        analytics.StatusOK,
	}
}

// newTestServer builds a server over three checkout traces one minute apart.
// The third trace fails in the payments call; every trace also has inventory
// query postgres.
func newTestServer(t *testing.T) (*Server, *storage.SpanStore) {
	t.Helper()

	store := storage.NewSpanStore(100, zap.NewNop())
	for i, d := range []float64{45, 1200, 30000} {
		id := fmt.Sprintf("trace-%d", i)
		offset := time.Duration(i) * time.Minute

		root := span(id, id+"-root", "", "checkout", "POST /checkout", offset, d)
		root.HTTP = &analytics.HTTPAttributes{Method: "POST", Path: "/checkout", StatusCode: 200}

		pay := span(id, id+"-pay", id+"-root", "payments", "charge", offset+time.Millisecond, d/2)
		db := span(id, id+"-db", id+"-root", "inventory", "SELECT stock", offset+time.Millisecond, d/4)
		db.DB = &analytics.DBAttributes{System: "postgresql", Name: "stock"}
		if i == 2 {
			pay.Status = analytics.StatusError
			root.Status = analytics.StatusError
		}
		store.AddSpans(root, pay, db)
	}

	srv, err := NewServer(
		query.NewService(store, query.Options{}),
		store,
		fakeReceiver("127.0.0.1:4317"),
		ServerOptions{Version: "test"},
	)
	require.NoError(t, err)
	return srv, store
}

func TestServerCreation(t *testing.T) {
	srv, store := newTestServer(t)

	assert.NotNil(t, srv.MCPServer())
	assert.Equal(t, store, srv.store)
	assert.Equal(t, "127.0.0.1:4317", srv.receiver.Endpoint())
}

func TestServerCreationRejectsNil(t *testing.T) {
	store := storage.NewSpanStore(10, nil)
	queries := query.NewService(store, query.Options{})
	recv := fakeReceiver("localhost:4317")

	_, err := NewServer(nil, store, recv, ServerOptions{})
	assert.Error(t, err)

	_, err = NewServer(queries, nil, recv, ServerOptions{})
	assert.Error(t, err)

	_, err = NewServer(queries, store, nil, ServerOptions{})
	assert.Error(t, err)
}
