// Package app wires the ledger components from configuration. Every binary
// builds one App and closes it on exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/aws"
	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/config"
	"github.com/imrishuroy/go-loyalty-ledger/internal/handlers"
	"github.com/imrishuroy/go-loyalty-ledger/internal/idempotency"
	"github.com/imrishuroy/go-loyalty-ledger/internal/identity"
	"github.com/imrishuroy/go-loyalty-ledger/internal/intake"
	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/metrics"
	"github.com/imrishuroy/go-loyalty-ledger/internal/outbox"
	"github.com/imrishuroy/go-loyalty-ledger/internal/scheduler"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
	"github.com/imrishuroy/go-loyalty-ledger/internal/summary"
)

// sweepBatch bounds how many expired rewards one sweep pass refreshes.
const sweepBatch = 200

// App holds the wired components.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Clients  *aws.Clients // nil when running locally
	Audit    *audit.Recorder
	Catalog  *catalog.Catalog
	Ledger   *ledger.Ledger
	Gateway  *intake.Gateway
	Reader   *summary.Reader
	Identity *identity.Resolver
	Metrics  metrics.Recorder
	Replay   *idempotency.Store // nil without IDEMPOTENCY_TABLE

	closers []func() error
}

// New opens the database and builds every component. AWS clients are only
// created when not running locally; Redis only when REDIS_ADDR is set.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = cfg.NewLogger()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.Nop{}}

	s, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a.Store = s
	a.closers = append(a.closers, s.Close)

	if !cfg.RunLocal {
		clients, err := aws.NewClients(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		a.Clients = clients
		a.Metrics = metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger)
		if cfg.IdempotencyTable != "" {
			a.Replay = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
		}
	}

	var cache summary.Cache = summary.NopCache{}
	if cfg.RedisAddr != "" {
		rdb, err := summary.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		cache = summary.NewRedisCache(rdb)
	}

	a.Audit = audit.NewRecorder(len(cfg.KafkaBrokers) > 0)
	a.Catalog = catalog.New(s, a.Audit, logger)
	a.Reader = summary.NewReader(s, cache, cfg.SummaryCacheTTL, logger)
	a.Ledger = ledger.New(s, a.Audit, summary.NewAggregator(),
		ledger.WithLogger(logger),
		ledger.WithInvalidator(a.Reader),
	)
	a.Gateway = intake.NewGateway(s, a.Ledger, a.Audit,
		intake.WithMetrics(a.Metrics),
		intake.WithInvalidator(a.Reader),
		intake.WithLogger(logger),
	)
	a.Identity = identity.NewResolver(logger, identity.DefaultChain(s, nil, nil)...)

	return a, nil
}

// HandlerConfig returns the dependencies for the HTTP routes.
func (a *App) HandlerConfig() handlers.HandlerConfig {
	cfg := handlers.HandlerConfig{
		Store:    a.Store,
		Gateway:  a.Gateway,
		Catalog:  a.Catalog,
		Ledger:   a.Ledger,
		Reader:   a.Reader,
		Identity: a.Identity,
		Logger:   a.Logger,
	}
	if a.Replay != nil {
		cfg.Replay = a.Replay
	}
	return cfg
}

// Relay builds the outbox relay with every sink the configuration allows.
// Kinds without a sink stay pending.
func (a *App) Relay() (*outbox.Relay, error) {
	r := outbox.NewRelay(a.Store,
		outbox.WithBatchSize(a.Config.RelayBatch),
		outbox.WithMaxAttempts(a.Config.RelayMaxAttempts),
		outbox.WithLogger(a.Logger),
	)

	if a.Clients != nil && a.Config.DiscountQueueURL != "" {
		sink := outbox.NewSQSSink(aws.NewPublisher(a.Clients.SQS, a.Config.DiscountQueueURL))
		r.Register(outbox.KindDiscountProvision, sink)
		r.Register(outbox.KindDiscountCleanup, sink)
	}

	if len(a.Config.KafkaBrokers) > 0 {
		producer, err := outbox.NewKafkaProducer(a.Config.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		r.Register(outbox.KindAuditEvent, outbox.NewKafkaSink(producer, a.Config.AuditTopic))
	}
	return r, nil
}

// Jobs returns the periodic relay and expiry sweep.
func (a *App) Jobs(relay *outbox.Relay) []scheduler.Job {
	return []scheduler.Job{
		{
			Name:       "outbox-relay",
			Interval:   a.Config.RelayInterval,
			RunAtStart: true,
			Run: func(ctx context.Context) error {
				stats, err := relay.RunOnce(ctx)
				a.Metrics.Record(ctx,
					metrics.Count(metrics.OutboxSent, stats.Sent),
					metrics.Count(metrics.OutboxDeadLettered, stats.Dead),
				)
				return err
			},
		},
		{
			Name:     "expiry-sweep",
			Interval: a.Config.SweepInterval,
			Run: func(ctx context.Context) error {
				n, err := a.Ledger.RefreshExpired(ctx, sweepBatch)
				if n > 0 {
					a.Logger.Info("expired progress refreshed", "rewards", n)
				}
				return err
			},
		},
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
