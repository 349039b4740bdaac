package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-marketplace/internal/analytics"
	"github.com/noah-isme/toko-marketplace/internal/auth"
	"github.com/noah-isme/toko-marketplace/internal/cart"
	"github.com/noah-isme/toko-marketplace/internal/catalog"
	"github.com/noah-isme/toko-marketplace/internal/common"
	"github.com/noah-isme/toko-marketplace/internal/config"
	"github.com/noah-isme/toko-marketplace/internal/coupon"
	"github.com/noah-isme/toko-marketplace/internal/health"
	"github.com/noah-isme/toko-marketplace/internal/lock"
	"github.com/noah-isme/toko-marketplace/internal/notify"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/order"
	"github.com/noah-isme/toko-marketplace/internal/pricing"
	"github.com/noah-isme/toko-marketplace/internal/ratelimit"
	"github.com/noah-isme/toko-marketplace/internal/resilience"
	"github.com/noah-isme/toko-marketplace/internal/sponsored"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	zerolog.DefaultContextLogger = &logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics("toko", nil)
	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   cfg.OTelServiceName,
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient := asynq.NewClientFromRedisClient(redisClient)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	deps, err := buildDeps(cfg, logger, pool, redisClient, taskClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", srv.Addr).Msg("listen")
	}
	if err := serve(ctx, srv, ln, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func buildDeps(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, tasks notify.Enqueuer) (routerDeps, error) {
	st := store.NewStore(pool)
	queries := st.Queries

	policy := pricing.Policy{TaxRate: cfg.TaxRate, ExpressFee: cfg.ExpressFee}
	coupons := &coupon.Service{Q: queries, Logger: logger.With().Str("component", "coupon").Logger()}

	recorder := &sponsored.ImpressionRecorder{
		R:        rdb,
		Q:        queries,
		Location: cfg.TimeZone,
		Logger:   logger.With().Str("component", "impressions").Logger(),
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:        queries,
		Cache:          catalog.NewCache(rdb, cfg.CacheTTL),
		Impressions:    recorder,
		SponsoredRatio: cfg.SponsoredRatio,
		Logger:         logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		return routerDeps{}, err
	}

	couponLimiter, err := ratelimit.NewRedis(rdb, "rl:coupon", cfg.CouponRateLimit, cfg.CouponRatePeriod)
	if err != nil {
		return routerDeps{}, err
	}

	orderSvc := &order.Service{
		Q:       queries,
		Tx:      order.StoreTx{Store: st},
		Coupons: coupons,
		Pricing: policy,
		Notifier: &notify.Client{
			Q:       tasks,
			Queue:   cfg.NotifyQueue,
			Timeout: 30 * time.Second,
			Breaker: resilience.NewBreaker("notify-enqueue", 5, 0.5, 30*time.Second).
				WithLogger(logger.With().Str("component", "breaker").Logger()),
		},
		Logger:        logger.With().Str("component", "order").Logger(),
		Currency:      cfg.Currency,
		NotifyTimeout: cfg.NotifyTimeout,
	}

	return routerDeps{
		Logger:  logger,
		Metrics: obs.NewHTTPMetrics("toko", obs.ParseBucketsCSV(cfg.HTTPMetricsBuckets), nil),
		Tracing: cfg.OTelEnabled,
		Service: cfg.OTelServiceName,
		Origins: cfg.CORSAllowedOrigins,
		HSTS:    cfg.IsProduction(),
		BodyMax: cfg.BodyLimitBytes,
		Auth: auth.Middleware{
			Verifier: auth.Verifier{
				Secret:    []byte(cfg.JWTSecret),
				Issuer:    cfg.JWTIssuer,
				Audience:  cfg.JWTAudience,
				ClockSkew: 30 * time.Second,
			},
			AccessCookie: cfg.AccessCookie,
		},
		Idem:          common.Idem{R: rdb, TTL: cfg.IdempotencyTTL},
		CouponLimiter: couponLimiter,
		Health: health.Handler{
			Checker: health.Dependencies{DB: pool, Redis: rdb},
		},
		Catalog: catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc}),
		Cart: &cart.Handler{Svc: &cart.Service{
			Q:       queries,
			Coupons: coupons,
			Pricing: policy,
		}},
		Orders:  &order.Handler{Svc: orderSvc},
		Coupons: &coupon.Handler{Admin: &coupon.Admin{Q: queries}},
		Sponsored: &sponsored.Handler{
			Svc: &sponsored.Service{
				Q:    queries,
				Lock: lock.Locker{R: rdb, Prefix: "lock", RetryBackoff: 50 * time.Millisecond, MaxWait: 2 * time.Second},
			},
			Recorder: recorder,
		},
		Analytics: &analytics.Handler{Svc: &analytics.Service{Q: queries, R: rdb, TTL: cfg.AnalyticsCacheTTL}},
	}, nil
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-marketplace-api"

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}
