package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/rental-reservations/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/rental-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/rental-reservations/internal/adapters/redis"
	"github.com/robertarktes/rental-reservations/internal/auth"
	"github.com/robertarktes/rental-reservations/internal/booking"
	"github.com/robertarktes/rental-reservations/internal/config"
	httphandler "github.com/robertarktes/rental-reservations/internal/http"
	"github.com/robertarktes/rental-reservations/internal/idempotency"
	"github.com/robertarktes/rental-reservations/internal/observability"
	"github.com/robertarktes/rental-reservations/internal/pricing"
	"github.com/robertarktes/rental-reservations/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)
	observability.InitMetrics()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	if err := crdb.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}
	crdbRepo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDatabase)
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	auditLogger := mongoadapter.NewAuditLogger(mongoDB, logger)

	policy, err := pricing.ParsePolicy(cfg.OverridePolicy)
	if err != nil {
		log.Fatalf("invalid override policy: %v", err)
	}
	opts := []booking.Option{
		booking.WithAuditLog(auditLogger),
		booking.WithDefaultCurrency(cfg.DefaultCurrency),
	}

	checks := []httphandler.ReadinessCheck{
		{Name: "crdb", Check: crdbRepo.Ping},
		{Name: "mongo", Check: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
	}

	var (
		rl    httphandler.Limiter
		idemp *idempotency.Idempotency
	)
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		opts = append(opts, booking.WithQuoteCache(redisadapter.NewQuoteCache(redisClient, cfg.QuoteCacheTTL)))
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
		rl = rateLimit.NewRateLimiter(redisClient)
		checks = append(checks, httphandler.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		logger.Warn("REDIS_ADDR not set: quote cache, idempotent replay and rate limiting are disabled")
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret, 24*time.Hour)
	}

	svc := booking.NewOrchestrator(mongoCatalog, crdbRepo, crdbRepo, pricing.NewEngine(pricing.WithPolicy(policy)), logger, opts...)
	overrides := booking.NewOverrideManager(svc, mongoCatalog, crdbRepo)
	handlers := httphandler.NewHandlers(svc, overrides, logger, checks...)

	r := httphandler.SetupRouter(handlers, logger, verifier, rl, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.HTTPAddr).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
