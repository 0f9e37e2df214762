package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/sirupsen/logrus"

	authhttp "github.com/open-rails/recoverykit/adapters/http"
	"github.com/open-rails/recoverykit/config"
	"github.com/open-rails/recoverykit/core"
	"github.com/open-rails/recoverykit/email"
	amqpevents "github.com/open-rails/recoverykit/events/amqp"
	pgmigrations "github.com/open-rails/recoverykit/migrations/postgres"
	"github.com/open-rails/recoverykit/riverjobs"
	memorystore "github.com/open-rails/recoverykit/storage/memory"
	pgstore "github.com/open-rails/recoverykit/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	log := cfg.NewLogger()

	cmd := "serve"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		cmd = strings.TrimSpace(os.Args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, log)
	case "migrate":
		err = runMigrations(ctx, cfg.Database.URL, log)
	case "sweep":
		err = runSweep(ctx, cfg, log)
	default:
		err = fmt.Errorf("unknown command %q (supported: serve, migrate, sweep)", cmd)
	}
	if err != nil {
		fatal(err)
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if cfg.Database.MigrateOnStart {
		if err := runMigrations(ctx, cfg.Database.URL, log); err != nil {
			return err
		}
	}

	pg, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	coreSvc := core.NewService(cfg.Core()).
		WithStore(pgstore.NewFromPool(pg)).
		WithLogger(log).
		WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)

	var rdb redis.UniversalClient
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rdb = client
	}

	if cfg.AMQP.URL != "" {
		pub, err := amqpevents.Dial(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.WithError(err).Warn("close amqp publisher")
			}
		}()
		coreSvc.WithEventLogger(pub)
	}

	// Jobs
	delivery, err := newDeliverySender(cfg, log)
	if err != nil {
		return err
	}
	queueMode := cfg.Email.Mode == config.EmailModeQueue
	workers := river.NewWorkers()
	if queueMode {
		riverjobs.RegisterWorkers(workers, coreSvc, delivery)
	} else {
		riverjobs.RegisterWorkers(workers, coreSvc, nil)
	}
	rc, err := river.NewClient(riverpgxv5.New(pg), &river.Config{
		Queues:  map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: cfg.Jobs.MaxWorkers}},
		Workers: workers,
	})
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	if cfg.Jobs.SweepCron != "" {
		if err := riverjobs.AddSweepExpiredPeriodicJob(rc, cfg.Jobs.SweepCron, cfg.Jobs.SweepOnStartup); err != nil {
			return err
		}
	}
	if queueMode {
		coreSvc.WithEmailSender(riverjobs.NewQueueSender(rc))
	} else {
		coreSvc.WithEmailSender(delivery)
	}
	if err := rc.Start(ctx); err != nil {
		return fmt.Errorf("start river: %w", err)
	}
	defer stopRiver(rc, cfg.Server.ShutdownTimeout, log)

	// HTTP
	api := authhttp.Wrap(coreSvc).WithLogger(log).WithAdminSecret(cfg.Server.AdminJWTSecret)
	if rdb != nil {
		api.WithRedis(rdb)
	}
	if len(cfg.Server.TrustedProxies) > 0 {
		prefixes, err := authhttp.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			return err
		}
		api.WithClientIPFunc(authhttp.ClientIPFromForwardedHeaders(prefixes))
	}
	if !cfg.Server.RateLimit {
		api.DisableRateLimiter()
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.APIHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":       cfg.Server.ListenAddr,
			"email_mode": cfg.Email.Mode,
			"ephemeral":  api.Core().EphemeralMode(),
		}).Info("recoverykit listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newDeliverySender(cfg *config.Config, log logrus.FieldLogger) (core.EmailSender, error) {
	switch cfg.Email.Mode {
	case config.EmailModeSMTP, config.EmailModeQueue:
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPass,
			From:     cfg.Email.From,
			SSL:      cfg.Email.SMTPSSL,
		})
	default:
		return email.NewLogSender(log), nil
	}
}

func stopRiver(rc *river.Client[pgx.Tx], timeout time.Duration, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rc.Stop(ctx); err != nil {
		log.WithError(err).Warn("stop river")
	}
}

func runSweep(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	pg, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	svc := core.NewService(cfg.Core()).WithStore(pgstore.NewFromPool(pg)).WithLogger(log)
	res, err := svc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"pending":      res.Pending,
		"otps":         res.OTPs,
		"reset_tokens": res.ResetTokens,
	}).Info("sweep complete")
	return nil
}

func runMigrations(ctx context.Context, dbURL string, log logrus.FieldLogger) error {
	sqlDB, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer sqlDB.Close()
	if err := pgmigrations.Apply(ctx, sqlDB); err != nil {
		return err
	}

	pg, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	migrator, err := rivermigrate.New(riverpgxv5.New(pg), nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	log.WithField("river_versions", len(res.Versions)).Info("migrations applied")
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
