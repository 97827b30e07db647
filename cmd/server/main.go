package main

import (
	"context"
	"log/slog"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomrelay/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("Starting room relay server...", "port", config.Port, "room_code_length", config.RoomCodeLength)

	relayServer, err := server.NewRelayServer(config, logger)
	if err != nil {
		logger.Error("Failed to create relay server", "error", err)
		os.Exit(1)
	}
	relayServer.Start()

	go func() {
		if err := relayServer.ListenAndServe(); err != nil {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated...")
				return relayServer.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Relay server exited", "code", exitCode)
	os.Exit(exitCode)
}
