// Package ws adapts gorilla/websocket connections to the registry's
// Transport contract and runs the read loop that feeds inbound frames into
// the dispatcher, with lifecycle handlers bracketing connect and disconnect.
package ws

import (
	"context"
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"toromines/server/internal/dispatch"
	"toromines/server/internal/lifecycle"
)

// connTransport adapts *websocket.Conn to registry.Transport. Writes are
// serialised by the session's own writePump goroutine, so this type never
// needs its own lock.
type connTransport struct {
	conn *websocket.Conn
}

func (t *connTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

// HandlerConfig carries the dependencies a Handler needs beyond the upgrade
// itself.
type HandlerConfig struct {
	Logger *log.Logger
}

// Handler upgrades incoming HTTP requests to websocket connections and runs
// each connection's read loop until it closes.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	lifecycle  *lifecycle.Handlers
	logger     *log.Logger
	upgrader   websocket.Upgrader
}

// NewHandler constructs a Handler wired to the dispatcher and lifecycle
// handlers a running server shares across every connection.
func NewHandler(d *dispatch.Dispatcher, lc *lifecycle.Handlers, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		dispatcher: d,
		lifecycle:  lc,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *nethttp.Request) bool { return true },
		},
	}
}

// Handle upgrades the request, runs connect bookkeeping, and then blocks
// reading inbound frames until the connection closes or errors, at which
// point disconnect bookkeeping runs.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws: upgrade failed: %v", err)
		return
	}

	transport := &connTransport{conn: conn}
	ctx := r.Context()

	playerID, err := h.lifecycle.Connect(ctx, transport)
	if err != nil {
		h.logger.Printf("ws: connect failed: %v", err)
		conn.Close()
		return
	}
	defer h.lifecycle.Disconnect(context.Background(), transport)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatcher.Handle(ctx, playerID, payload)
	}
}
