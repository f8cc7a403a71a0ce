package cli

import (
	"context"
	"errors"
	"fmt"

	"myfinances/internal/amqp"
	"myfinances/internal/api"
	"myfinances/internal/backend"
	"myfinances/internal/cache"
	"myfinances/internal/config"
	"myfinances/internal/exchangerate"
	"myfinances/internal/gateway"
	applog "myfinances/internal/log"
	"myfinances/internal/rates"
	"myfinances/internal/session"
)

// App holds the wired client components.
type App struct {
	Config  *config.Config
	Logger  *applog.Logger
	Session *session.Manager
	Gateway *gateway.Gateway
	API     *api.Client
	Rates   *rates.Cache
	Caches  *cache.Manager
	// AMQP is nil unless AMQP_URL is set and the broker was reachable.
	AMQP *amqp.Client

	cleanup backend.CleanupFunc
}

// NewApp opens the local state backend and wires every component on top of it.
// Persisted session and rate state is loaded. Close must be called when done.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}

	httpClient := NewHTTPClient(cfg, logger)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Caches:  cache.NewManager(logger),
		cleanup: res.Cleanup,
	}

	a.Session = session.New(session.Config{
		BaseURL:    cfg.APIBaseURL,
		Username:   cfg.APIUsername,
		Password:   cfg.APIPassword,
		Lifetime:   cfg.TokenLifetime,
		HTTPClient: httpClient,
		Store:      res.Backend.Secure,
		Logger:     logger,
	})
	a.Session.LoadPersisted(ctx)

	a.Gateway = gateway.New(gateway.Config{
		BaseURL:    cfg.APIBaseURL,
		Tokens:     a.Session,
		HTTPClient: httpClient,
		RateLimit:  cfg.APIRateLimit,
		Logger:     logger,
	})
	a.API = api.New(api.Config{
		Gateway:  a.Gateway,
		CacheTTL: cfg.APICacheTTL,
		Logger:   logger,
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, rate updates will not be shared", applog.FieldError, err)
		} else {
			a.AMQP = client
		}
	}

	rcfg := rates.Config{
		Base:          cfg.RatesBaseCurrency,
		Freshness:     cfg.RatesFreshness,
		RetryInterval: cfg.RatesRetryInterval,
		Fetcher: exchangerate.New(exchangerate.Config{
			BaseURL:    cfg.RatesBaseURL,
			APIKey:     cfg.RatesAPIKey,
			HTTPClient: httpClient,
			RetryMax:   2,
			Logger:     logger,
		}),
		Store:  res.Backend.State,
		Logger: logger,
	}
	if a.AMQP != nil {
		rcfg.Notifier = a.AMQP
	}
	a.Rates = rates.New(rcfg)
	a.Rates.LoadPersisted(ctx)

	a.Caches.Register(cache.CleanerFunc(a.Session.CleanExpired))
	a.Caches.Register(a.API.Cache())

	return a, nil
}

// Close releases every resource held by the app.
func (a *App) Close() error {
	a.Caches.Stop()
	a.Session.Close()
	var errs []error
	if a.AMQP != nil {
		errs = append(errs, a.AMQP.Close())
	}
	if a.cleanup != nil {
		errs = append(errs, a.cleanup())
	}
	return errors.Join(errs...)
}
