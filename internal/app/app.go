// Package app wires the persistence, engine, registry, broadcast, dispatch,
// and lifecycle layers into a running HTTP server.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"toromines/server/internal/broadcast"
	"toromines/server/internal/config"
	"toromines/server/internal/dispatch"
	"toromines/server/internal/engine"
	"toromines/server/internal/lifecycle"
	servernet "toromines/server/internal/net"
	"toromines/server/internal/net/ws"
	"toromines/server/internal/oracle"
	"toromines/server/internal/registry"
	"toromines/server/internal/store"
	"toromines/server/logging"
	"toromines/server/logging/sinks"
)

// Run loads configuration, opens the store, wires every layer together, and
// blocks serving HTTP until ctx is cancelled or the listener fails.
func Run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}

	fallbackLogger := log.Default()

	logCfg := logging.DefaultConfig()
	logCfg.MinimumSeverity = parseSeverity(cfg.LogLevel)

	router, err := logging.NewRouter(nil, logCfg, []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	})
	if err != nil {
		return fmt.Errorf("app: construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(ctx); cerr != nil {
			fallbackLogger.Printf("app: close logging router: %v", cerr)
		}
	}()

	st, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("app: open store: %w", err)
	}
	defer st.Close()

	o := oracle.New(cfg.Seed, config.GridWidth, config.GridHeight)
	eng := engine.New(o, st, config.GridWidth, config.GridHeight)
	reg := registry.New(config.GridWidth, config.GridHeight, registry.UUIDMinter{}, router)
	bcast := broadcast.New(reg)

	disp := dispatch.New(eng, st, reg, bcast, router, fallbackLogger)
	lc := lifecycle.New(st, reg, bcast.Broadcast, bcast.SendTo, router, fallbackLogger)
	wsHandler := ws.NewHandler(disp, lc, ws.HandlerConfig{Logger: fallbackLogger})

	handler := servernet.NewHTTPHandler(wsHandler, reg, servernet.HTTPHandlerConfig{
		Logger: fallbackLogger,
		Router: router,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	fallbackLogger.Printf("app: listening on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		err := srv.Shutdown(context.Background())
		reg.CloseAll()
		return err
	case err := <-errCh:
		reg.CloseAll()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: server failed: %w", err)
		}
		return nil
	}
}

func parseSeverity(level string) logging.Severity {
	switch strings.ToLower(level) {
	case "debug":
		return logging.SeverityDebug
	case "warn", "warning":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
