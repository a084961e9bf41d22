package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dm-vev/emberhold/server"
	"github.com/dm-vev/emberhold/server/config"
	"github.com/dm-vev/emberhold/server/ingress"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "config.toml", "path to the server's TOML configuration file")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))

	config.RaiseFileLimit(log)

	file, err := config.Load(*configPath, log)
	if err != nil {
		log.Error("failed to load configuration", "path", *configPath, "err", err)
		return 1
	}

	srv := server.New(server.Config{
		Log:        log,
		File:       file,
		Dispatcher: ingress.Dispatcher{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server", "max_players", file.MaxPlayers, "view_distance", file.ViewDistance, "tick_rate", server.TickRate)
	if err := srv.Run(ctx); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("shut down cleanly")
	return 0
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
