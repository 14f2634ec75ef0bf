package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gridserve/internal/admin"
	"gridserve/internal/config"
	"gridserve/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Admin
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("admin")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // best-effort flush

	application, err := admin.New(&cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}
