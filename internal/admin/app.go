package admin

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/config"
	"gridserve/internal/httpserver"
	"gridserve/internal/notify"
	"gridserve/internal/postgres"
	"gridserve/internal/repository"
)

// App wires the operator API dependencies.
type App struct {
	server *httpserver.Server
	db     *sql.DB
	broker *notify.Broker
	logger *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Admin, logger *zap.Logger) (*App, error) {
	cfg.Defaulted()

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}

	broker, err := notify.NewBroker(cfg.Broker.URL,
		[]string{cfg.Broker.CheckQueue, cfg.Broker.TransmitQueue}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	publisher := notify.NewTaskPublisher(broker, cfg.Broker.CheckQueue, cfg.Broker.TransmitQueue, logger)

	admins := auth.NewAdminAuth(*cfg)

	handlers := Handlers{
		Aggregators: NewAggregatorHandlers(
			repository.NewAggregatorRepository(db),
			repository.NewCertificateRepository(db),
			logger),
		Sites: NewSiteHandlers(
			repository.NewSiteRepository(db),
			repository.NewReadingRepository(db),
			publisher, logger),
		Controls: NewControlHandlers(
			repository.NewControlGroupRepository(db),
			repository.NewDOERepository(db),
			repository.NewDefaultControlRepository(db),
			publisher, logger),
		Tariffs: NewTariffHandlers(
			repository.NewTariffRepository(db),
			publisher, logger),
		Logs: NewLogHandlers(
			repository.NewCalculationLogRepository(db),
			repository.NewArchiveRepository(db),
			repository.NewSubscriptionRepository(db),
			logger),
		Config: NewConfigHandlers(
			repository.NewRuntimeConfigRepository(db),
			admins, logger),
	}

	router := NewRouter(handlers, admins.Wrap, db)
	server := httpserver.NewServer(cfg.HTTPAddr, router, logger,
		httpserver.RecoveryMiddleware(logger),
		httpserver.LoggingMiddleware(logger))

	return &App{server: server, db: db, broker: broker, logger: logger}, nil
}

// Run serves until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases the application's connections.
func (a *App) Close() {
	a.broker.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
}
