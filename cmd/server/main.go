// Package main is the entry point for the mlvision API server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (environment, optionally seeded from .env)
//  2. Create the logger
//  3. Build and start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/mlvision/internal/config"
	"github.com/sakif/mlvision/internal/logger"
	"github.com/sakif/mlvision/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet: the level and format are part of the config.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
