package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/arodchenko/inkwell/internal/client/cli"
	"github.com/arodchenko/inkwell/internal/client/config"
	"github.com/arodchenko/inkwell/internal/logging"
)

func main() {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg, log)
	if err != nil {
		log.Error(context.Background(), "failed to start", "error", err)
		os.Exit(1)
	}

	app.Run(context.Background())
}
