package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backtest-lab/internal/storage"
)

const (
	wsPollInterval = time.Second
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WatchRun handles GET /api/runs/:id/ws. It upgrades the connection and
// pushes a run snapshot once per poll interval until the run reaches a
// terminal status or the client goes away.
func (h *Handler) WatchRun(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Verify before upgrading so a bad ID still gets a JSON 404.
	if _, err := h.runs.GetByID(ctx, runID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		h.fail(c, "load run", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader goroutine notices the client closing the socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	for {
		run, err := h.runs.GetByID(ctx, runID)
		if err != nil {
			h.log.Warn("watch poll failed",
				zap.String("run_id", runID.String()), zap.Error(err))
			return
		}

		payload, err := json.Marshal(runSnapshot(run))
		if err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}

		if run.Status.Terminal() {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status)))
			return
		}

		select {
		case <-ticker.C:
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
