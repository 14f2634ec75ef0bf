package server

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gridserve/internal/auth"
	"gridserve/internal/cache"
	"gridserve/internal/config"
	"gridserve/internal/httpserver"
	"gridserve/internal/nmi"
	"gridserve/internal/notify"
	"gridserve/internal/postgres"
	"gridserve/internal/repository"
)

// Version is stamped at build time.
var Version = "dev"

// App wires the device server dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	broker      *notify.Broker
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Server, logger *zap.Logger) (*App, error) {
	cfg.Defaulted()

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	redisClient, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		db.Close()
		return nil, err
	}

	broker, err := notify.NewBroker(cfg.Broker.URL,
		[]string{cfg.Broker.CheckQueue, cfg.Broker.TransmitQueue}, logger)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}
	publisher := notify.NewTaskPublisher(broker, cfg.Broker.CheckQueue, cfg.Broker.TransmitQueue, logger)

	sites := repository.NewSiteRepository(db)
	certs := repository.NewCertificateRepository(db)
	aggregators := repository.NewAggregatorRepository(db)
	groups := repository.NewControlGroupRepository(db)
	does := repository.NewDOERepository(db)
	defaults := repository.NewDefaultControlRepository(db)
	tariffs := repository.NewTariffRepository(db)
	ders := repository.NewDERRepository(db)
	readings := repository.NewReadingRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	responses := repository.NewResponseRepository(db)
	runtime := repository.NewRuntimeConfigRepository(db)

	nmis, err := nmi.NewValidator(cfg.NMIIncludes, cfg.NMIExcludes)
	if err != nil {
		db.Close()
		redisClient.Close()
		broker.Close()
		return nil, err
	}

	hrefs := Hrefs{Prefix: cfg.HrefPrefix}
	handlers := Handlers{
		Device:        NewDeviceHandlers(sites, groups, runtime, publisher, nmis, hrefs, cfg.DefaultTimezone, logger),
		DER:           NewDERHandlers(sites, ders, runtime, publisher, hrefs, logger),
		DOE:           NewDOEHandlers(sites, groups, does, defaults, runtime, hrefs, logger),
		Pricing:       NewPricingHandlers(sites, tariffs, hrefs, logger),
		Metering:      NewMeteringHandlers(sites, readings, runtime, publisher, hrefs, logger),
		Subscriptions: NewSubscriptionHandlers(sites, subs, aggregators, publisher, hrefs, logger),
		Responses:     NewResponseHandlers(sites, responses, hrefs, logger),
	}

	registry := auth.NewRegistry(certs, redisClient, cfg.CertCacheTTL, logger)
	certAuth := &auth.CertMiddleware{
		Header:                  cfg.CertHeader,
		Registry:                registry,
		Sites:                   sites,
		AllowDeviceRegistration: cfg.AllowDeviceRegistration,
		Logger:                  logger,
	}

	var secured func(http.Handler) http.Handler = certAuth.Wrap
	router := NewRouter(handlers, secured, db, Version, logger)
	server := httpserver.NewServer(cfg.HTTPAddr, router, logger,
		httpserver.RecoveryMiddleware(logger), httpserver.LoggingMiddleware(logger))

	return &App{
		server:      server,
		db:          db,
		redisClient: redisClient,
		broker:      broker,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.broker != nil {
		a.broker.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
