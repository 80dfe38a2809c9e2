// Package net wires the HTTP surface: health and diagnostics endpoints,
// optional static client serving, and the websocket upgrade route.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"toromines/server/internal/net/ws"
	"toromines/server/internal/registry"
	"toromines/server/logging"
)

// HTTPHandlerConfig carries everything the HTTP surface needs beyond the
// websocket handler itself.
type HTTPHandlerConfig struct {
	ClientDir string
	Logger    *log.Logger
	Router    *logging.Router
}

// NewHTTPHandler builds the full mux: /health, /diagnostics, /ws, and an
// optional static file server for the client bundle.
func NewHTTPHandler(wsHandler *ws.Handler, reg *registry.Registry, cfg HTTPHandlerConfig) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status        string `json:"status"`
			ServerTime    int64  `json:"serverTime"`
			PlayerCount   int    `json:"playerCount"`
			EventsTotal   uint64 `json:"eventsTotal"`
			DroppedTotal  uint64 `json:"droppedTotal"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			PlayerCount: reg.Count(),
		}

		if cfg.Router != nil {
			stats := cfg.Router.Stats()
			payload.EventsTotal = stats.EventsTotal
			payload.DroppedTotal = stats.DroppedTotal
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/ws", wsHandler.Handle)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
