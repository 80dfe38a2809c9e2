// Package config loads the server's startup configuration: listening
// endpoint, persistent-store location, map seed, and log verbosity. It also
// carries the grid dimensions and viewport extents, which the specification
// fixes rather than exposing as configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// GridWidth and GridHeight are the fixed dimensions of the toroidal grid.
const (
	GridWidth  = 640
	GridHeight = 640
)

// ViewportRadiusX and ViewportRadiusY are the half-extents of a session's
// area of interest centred on its cursor.
const (
	ViewportRadiusX = 30
	ViewportRadiusY = 20
)

// MinSeedLength is the minimum accepted length of the map seed.
const MinSeedLength = 10

// Config holds everything the process needs at startup.
type Config struct {
	ListenAddr string
	StorePath  string
	Seed       string
	LogLevel   string
}

// Load parses configuration from command-line flags, falling back to
// environment variables, and validates the result. It mirrors the
// flag-then-env layering a production entrypoint uses so the server can run
// either under a process manager (env vars) or invoked directly (flags).
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("toromines-server", flag.ContinueOnError)
	listenAddr := fs.String("listen", envOr("TOROMINES_LISTEN_ADDR", ":8080"), "listen address (host:port)")
	storePath := fs.String("store", envOr("TOROMINES_STORE_PATH", "toromines.db"), "path to the sqlite store file")
	seed := fs.String("seed", envOr("TOROMINES_SEED", ""), "map seed, at least 10 characters")
	logLevel := fs.String("log-level", envOr("TOROMINES_LOG_LEVEL", "info"), "log verbosity")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr: *listenAddr,
		StorePath:  *storePath,
		Seed:       *seed,
		LogLevel:   *logLevel,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Seed) < MinSeedLength {
		return fmt.Errorf("config: seed must be at least %d characters, got %d", MinSeedLength, len(c.Seed))
	}
	if c.ListenAddr == "" {
		return errors.New("config: listen address is required")
	}
	if c.StorePath == "" {
		return errors.New("config: store path is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
