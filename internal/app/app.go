// Package app assembles the dispatch pipeline from configuration. The API server,
// the queue worker and the operator CLI share this wiring.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/config"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/db"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/events"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/metrics"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/provider"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/repository"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

// App holds the long-lived collaborators of a process
type App struct {
	DB       *db.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Events   events.Publisher
	Adapters *provider.Registry

	Jobs     repository.CampaignJobRepository
	Lists    repository.ContactListRepository
	Dispatch service.DispatchService
	JobSvc   service.JobService
	ListSvc  service.ContactListService

	logger zerolog.Logger
}

// Build connects to the database and the event bus and wires every service
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	database, err := db.New(db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("connected to database")

	publisher, err := connectEvents(ctx, cfg.Events, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jobs := repository.NewCampaignJobRepository(database.DB)
	lists := repository.NewContactListRepository(database.DB)
	creds := repository.NewCachedCredentialsRepository(
		repository.NewProviderCredentialsRepository(database.DB),
		cfg.Credentials.CacheTTL,
	)

	adapters := NewAdapterRegistry(cfg.Provider, logger)

	dispatch := service.NewDispatchService(service.DispatchDeps{
		Jobs:        jobs,
		Credentials: creds,
		Resolver: service.NewRecipientResolver(lists, service.ResolverConfig{
			DefaultCountryCode: cfg.Dispatch.DefaultCountryCode,
			FetchConcurrency:   cfg.Dispatch.ListFetchConcurrency,
		}, logger),
		Templates: service.NewTemplateService(),
		Adapters:  adapters,
		Events:    publisher,
		Metrics:   m,
	}, service.DispatchConfig{
		SubmitTimeout:        cfg.Dispatch.SubmitTimeout,
		RecordRenderedFields: cfg.Dispatch.RecordRenderedFields,
		PublishTimeout:       cfg.Dispatch.PublishTimeout,
	}, logger)

	return &App{
		DB:       database,
		Registry: reg,
		Metrics:  m,
		Events:   publisher,
		Adapters: adapters,
		Jobs:     jobs,
		Lists:    lists,
		Dispatch: dispatch,
		JobSvc:   service.NewJobService(jobs, logger),
		ListSvc:  service.NewContactListService(lists, logger),
		logger:   logger,
	}, nil
}

// NewAdapterRegistry registers every production adapter, plus the mock sender when enabled
func NewAdapterRegistry(cfg config.ProviderConfig, logger zerolog.Logger) *provider.Registry {
	reg := provider.NewRegistry(
		provider.NewBrevoAdapter(transportConfig(cfg.Brevo), logger),
		provider.NewMSG91Adapter(transportConfig(cfg.MSG91), logger),
		provider.NewFast2SMSAdapter(transportConfig(cfg.Fast2SMS), logger),
		provider.NewWATIAdapter(transportConfig(cfg.WATI), logger),
		provider.NewSMTPAdapter(provider.SMTPConfig{
			Host:          cfg.SMTP.Host,
			Port:          cfg.SMTP.Port,
			Username:      cfg.SMTP.Username,
			Password:      cfg.SMTP.Password,
			RatePerSecond: cfg.SMTP.RatePerSecond,
			Burst:         cfg.SMTP.Burst,
		}, logger),
	)
	if cfg.Mock.Enabled {
		reg.Register(provider.NewMockAdapter(models.IdentityPhone, cfg.Mock.SuccessRate, cfg.Mock.Delay, logger))
		logger.Warn().Float64("success_rate", cfg.Mock.SuccessRate).Msg("mock provider enabled")
	}
	return reg
}

func transportConfig(c config.HTTPProviderConfig) provider.TransportConfig {
	return provider.TransportConfig{
		BaseURL:       c.BaseURL,
		Timeout:       c.Timeout,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
		ChunkSize:     c.ChunkSize,
	}
}

func connectEvents(ctx context.Context, cfg config.EventsConfig, logger zerolog.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Info().Msg("event bus not configured, lifecycle events disabled")
		return events.NopPublisher{}, nil
	}
	p, err := events.Dial(ctx, events.Config{URL: cfg.AMQPURL, Exchange: cfg.Exchange}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases the event bus and database connections
func (a *App) Close() {
	if err := a.Events.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close event publisher")
	}
	if err := a.DB.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close database")
	}
}
