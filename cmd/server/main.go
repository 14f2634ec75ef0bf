package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gridserve/internal/config"
	"gridserve/internal/logging"
	"gridserve/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Server
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("server")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // best-effort flush

	application, err := server.New(&cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}
