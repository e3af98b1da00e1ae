// Command server runs the wedding guest-list and seating API together with
// the page bundle it serves.
//
// main only reads the configuration, builds the logger and hands over to
// internal/server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/wedchart/internal/config"
	"github.com/sakif/wedchart/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
