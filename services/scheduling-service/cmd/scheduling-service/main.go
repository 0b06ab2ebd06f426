package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bridalos/bridalos/libs/auth"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/config"
	"github.com/bridalos/bridalos/libs/db"
	"github.com/bridalos/bridalos/libs/httpx"
	"github.com/bridalos/bridalos/libs/kafkax"
	otelx "github.com/bridalos/bridalos/libs/otel"
	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/libs/runtime"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/appointments"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/calendar"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/handlers"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/metrics"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/requests"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage/memory"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage/postgres"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.Real{}
	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))

	var (
		store  storage.Store
		checks []runtime.ReadyCheck
	)
	switch config.String("STORE", "postgres") {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.New(clk)
	default:
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		pool, err := db.OpenWithOptions(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		store = postgres.New(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if len(brokers) > 0 {
			writer := kafkax.NewWriter(brokers)
			defer func() { _ = writer.Close() }()
			publisher := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{
				PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			})
			go publisher.Run(ctx)
		} else {
			logger.Info("KAFKA_BROKERS not set; outbox events stay in the table")
		}
	}
	checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})

	portalLimiter, redisCheck := newPortalLimiter(logger)
	checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisCheck})

	defaultDuration := config.Int("APPOINTMENT_DEFAULT_DURATION_MINUTES", 90)
	h := handlers.New(
		appointments.NewService(store, clk, m, defaultDuration),
		requests.NewWorkflow(store, clk, m, defaultDuration),
		calendar.NewFeed(store, clk),
		logger,
		handlers.Config{
			FeedSecret:    config.String("CALENDAR_FEED_SECRET", ""),
			PublicBaseURL: config.String("PUBLIC_BASE_URL", "http://localhost:"+port),
		},
	)

	verifier := &auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifier.JWKS = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 10*time.Minute))
	}
	if verifier.Secret == "" && verifier.JWKS == nil {
		logger.Warn("neither JWT_SECRET nor JWKS_URL is set; staff routes will reject every token")
	}
	staff := func(next http.Handler) http.Handler {
		return auth.RequireStaff(next, verifier)
	}
	public := httpx.RateLimit(portalLimiter, httpx.ClientIP, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))

	mux := runtime.NewBaseMux(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), checks...)
	h.Register(mux, staff, public)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, m.ObserveHTTP),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DashboardCORS(config.List("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelx.HTTPHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// newPortalLimiter shares the portal budget across replicas through Redis
// when REDIS_ADDR is set and falls back to a per-process limiter otherwise.
func newPortalLimiter(logger *slog.Logger) (httpx.Limiter, func(context.Context) error) {
	limit := config.Int("PORTAL_RATE_LIMIT", 30)
	window := config.Duration("PORTAL_RATE_WINDOW", time.Minute)
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return httpx.NewMemoryLimiter(limit, window), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	logger.Info("portal rate limit backed by redis", "addr", addr, "limit", limit, "window", window.String())
	return httpx.NewRedisLimiter(rdb, limit, window, "ratelimit:portal:"), func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
