package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stockbook/stockbook/internal/app"
	"github.com/stockbook/stockbook/internal/platform/migrate"
)

func main() {
	if app.InTestMode() {
		return
	}
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|status")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var run func(context.Context, string) error
	switch os.Args[1] {
	case "up":
		run = migrate.Up
	case "down":
		run = migrate.Down
	case "status":
		run = migrate.Status
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err := run(ctx, cfg.PGDSN); err != nil {
		logger.Error("migrate", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrate done", slog.String("command", os.Args[1]))
}
