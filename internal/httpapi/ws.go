package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const wsKeepalive = 15 * time.Second

// wsUpdate tells dashboards that new spans arrived and views are stale.
type wsUpdate struct {
	Generation uint64 `json:"generation"`
}

// handleWebSocket sends the current generation on connect and again whenever
// the store changes. Bursts of writes coalesce into a single message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	// Clients never send anything; CloseRead cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	notifyCh, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	if err := s.sendGeneration(ctx, conn); err != nil {
		return
	}

	keepalive := time.NewTicker(wsKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-notifyCh:
		case <-keepalive.C:
		}
		if err := s.sendGeneration(ctx, conn); err != nil {
			return
		}
	}
}

func (s *Server) sendGeneration(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(wsUpdate{Generation: s.store.Stats().Generation})
	if err != nil {
		s.logger.Error("failed to marshal update", zap.Error(err))
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
