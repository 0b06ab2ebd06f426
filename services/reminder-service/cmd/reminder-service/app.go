package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/config"
	"github.com/bridalos/bridalos/libs/db"
	"github.com/bridalos/bridalos/libs/httpx"
	"github.com/bridalos/bridalos/libs/lock"
	otelx "github.com/bridalos/bridalos/libs/otel"
	"github.com/bridalos/bridalos/libs/runtime"
	"github.com/bridalos/bridalos/services/reminder-service/internal/metrics"
	"github.com/bridalos/bridalos/services/reminder-service/internal/notify"
	"github.com/bridalos/bridalos/services/reminder-service/internal/payments"
	"github.com/bridalos/bridalos/services/reminder-service/internal/reminders"
	"github.com/bridalos/bridalos/services/reminder-service/internal/schedule"
	"github.com/bridalos/bridalos/services/reminder-service/internal/storage"
)

const (
	jobAppointments = "appointments"
	jobPayments     = "payments"
)

// app is everything both the serve and sweep commands need.
type app struct {
	logger  *slog.Logger
	reg     *prometheus.Registry
	pool    *db.Pool
	rdb     *redis.Client
	runner  *schedule.Runner
	jobs    map[string]schedule.Job
	cleanup []func()
}

func newApp(ctx context.Context) (*app, error) {
	service := config.String("SERVICE_NAME", "reminder-service")
	a := &app{logger: runtime.NewLogger(service), reg: prometheus.NewRegistry()}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		a.logger.Error("otel setup failed", "err", err)
	} else {
		a.cleanup = append(a.cleanup, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		})
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	a.pool, err = db.Open(ctx, dbURL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("db connection failed: %w", err)
	}
	a.cleanup = append(a.cleanup, a.pool.Close)

	var locker lock.Locker = lock.Noop{}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		a.cleanup = append(a.cleanup, func() { _ = a.rdb.Close() })
		locker = lock.NewRedis(a.rdb, "bridalos")
	} else {
		a.logger.Warn("REDIS_ADDR not set; sweeps are not coordinated across replicas")
	}

	sender, err := notify.NewSender(ctx, notify.ProviderConfig{
		Provider: config.String("EMAIL_PROVIDER", "log"),
		SMTP: notify.SMTPConfig{
			Host:     config.String("SMTP_HOST", "localhost"),
			Port:     config.String("SMTP_PORT", "1025"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     config.String("EMAIL_FROM", "hello@bridalos.local"),
			FromName: config.String("EMAIL_FROM_NAME", "BridalOS"),
		},
		SendGrid: notify.SendGridConfig{
			APIKey:    config.String("SENDGRID_API_KEY", ""),
			FromEmail: config.String("EMAIL_FROM", "hello@bridalos.local"),
			FromName:  config.String("EMAIL_FROM_NAME", "BridalOS"),
		},
		SES: notify.SESConfig{
			Region:    config.String("AWS_REGION", ""),
			FromEmail: config.String("EMAIL_FROM", "hello@bridalos.local"),
			FromName:  config.String("EMAIL_FROM_NAME", "BridalOS"),
		},
	}, a.logger)
	if err != nil {
		a.close()
		return nil, err
	}
	templates, err := notify.LoadTemplates()
	if err != nil {
		a.close()
		return nil, err
	}
	gateway := notify.NewTemplatedGateway(sender, templates)

	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.reg)
	clk := clock.Real{}
	store := storage.New(a.pool)
	portalBase := config.String("PORTAL_BASE_URL", "")

	dispatcher := reminders.NewDispatcher(store, gateway, clk, a.logger, m, reminders.Config{
		Lead:          config.Duration("REMINDER_LEAD", 24*time.Hour),
		Width:         config.Duration("REMINDER_WINDOW", time.Hour),
		RetryGrace:    config.Duration("REMINDER_RETRY_GRACE", 0),
		PortalBaseURL: portalBase,
	})
	sweeper := payments.NewSweeper(store, gateway, clk, a.logger, m, payments.Config{
		DaysAhead:     config.Int("PAYMENT_REMINDER_DAYS_AHEAD", 3),
		PortalBaseURL: portalBase,
	})

	a.runner = schedule.NewRunner(locker, clk, a.logger)
	a.jobs = map[string]schedule.Job{
		jobAppointments: {
			Name:    jobAppointments,
			Next:    schedule.Hourly,
			Run:     dispatcher.Sweep,
			LockTTL: 15 * time.Minute,
		},
		jobPayments: {
			Name:    jobPayments,
			Next:    schedule.DailyAt(config.Int("PAYMENT_REMINDER_HOUR_UTC", 9), 0),
			Run:     sweeper.Sweep,
			LockTTL: 30 * time.Minute,
		},
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	port, err := config.Port("PORT", "8081")
	if err != nil {
		return err
	}
	var redisCheck func(context.Context) error
	if a.rdb != nil {
		redisCheck = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
	}
	mux := runtime.NewBaseMux(promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}),
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(a.pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisCheck},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelx.HTTPHandler(httpx.Chain(mux, httpx.WithRequestID, httpx.WithRecover(a.logger)), "reminders"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "err", err)
		}
	}()

	a.logger.Info("reminder scheduler started")
	a.runner.Run(ctx, a.jobs[jobAppointments], a.jobs[jobPayments])

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "err", err)
	}
	a.logger.Info("reminder scheduler stopped")
	return nil
}

func sweepOnce(ctx context.Context, name string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sum, ran, err := a.runner.RunOnce(ctx, a.jobs[name])
	if err != nil {
		return fmt.Errorf("%s sweep: %w", name, err)
	}
	if !ran {
		a.logger.Info("sweep skipped; another replica holds the lock", "job", name)
		return nil
	}
	a.logger.Info("sweep complete", append([]any{"job", name}, sum.LogAttrs()...)...)
	return nil
}
