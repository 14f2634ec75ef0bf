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
	"gridserve/internal/notifier"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Notifier
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("notifier")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // best-effort flush

	worker, err := notifier.New(&cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize worker", zap.Error(err))
	}
	defer worker.Close()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}
