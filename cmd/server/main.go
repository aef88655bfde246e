package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/broker"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/cache"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/config"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/dedup"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/delivery"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/kafka"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/membership"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/presence"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository/bolt"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository/postgres"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/retry"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/server"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/syncer"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/ticker"
	grpc_transport "github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/transport/grpc"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/transport/httpapi"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/tx"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// closers run in reverse order of registration on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		observability.InitLogger("messaging-service", "")
		observability.Log.Fatal("invalid configuration", zap.Error(err))
	}

	// Observability
	observability.InitLogger(cfg.ServiceName, cfg.LogLevel)
	log := observability.Log
	defer log.Sync()

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error("failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	var cleanup closers
	defer cleanup.run()

	instanceID := getOrGenerateInstanceID(cfg.InstanceID)
	log.Info("starting messaging service", zap.String("instance_id", instanceID))

	redisClient := initRedis(ctx, cfg.RedisAddr, log)
	cleanup.add(func() { redisClient.Close() })

	store, checks := initStore(ctx, cfg, redisClient, log, &cleanup)
	checks = append(checks, observability.ReadinessCheck{
		Name:  "redis",
		Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	rtr := router.New(redisClient, instanceID)
	pres := presence.New(redisClient, rtr)
	directory := membership.New(store, membership.DefaultTTL)
	guard := initGuard(cfg, redisClient)

	publisher, subscriber, failures := initBroker(cfg, log, &cleanup)

	// Core pipeline
	tracker := delivery.NewTracker(store, directory, pres, rtr, guard)
	if err := subscriber.Subscribe(ctx, cfg.KafkaTopic, tracker); err != nil {
		log.Fatal("failed to subscribe delivery tracker", zap.Error(err))
	}

	retryOpts := []retry.Option{
		retry.WithBatchSize(cfg.Delivery.SweepBatchSize),
		retry.WithPublishRate(cfg.RetryPublishRate),
	}
	if failures != nil {
		retryOpts = append(retryOpts, retry.WithFailureSink(failures))
	}
	scheduler := retry.New(store, publisher, cfg.KafkaTopic, cfg.Delivery.MaxRetryCount, retryOpts...)
	sync := syncer.New(store, store, rtr, cfg.Delivery.SweepBatchSize)
	app := application.New(store, publisher, cfg.KafkaTopic, rtr)

	retryTask := ticker.New("retry", cfg.Delivery.RetrySweepInterval(), scheduler.Sweep)
	deliveryTask := ticker.New("delivery", cfg.Delivery.DeliverySweepInterval(), sync.SweepSent)
	go retryTask.Start(ctx)
	go deliveryTask.Start(ctx)

	// Live channels
	reg := websocket.NewRegistry()
	rtr.Subscribe(ctx, reg.Deliver, "conversation.*", "user.*")
	wsHandler := websocket.NewHandler(reg, pres, store, directory, sync, app, app, rtr, instanceID, cfg.ServiceName)

	// Servers
	api := httpapi.NewHandler(app, scheduler, sync, map[string]httpapi.SweepRunner{
		"retry":    retryTask,
		"delivery": deliveryTask,
	})
	apiSrv := server.New("api", cfg.HTTPAddr, httpapi.NewRouter(api, wsHandler, httpapi.RouterConfig{
		ServiceName:       cfg.ServiceName,
		AuthMode:          cfg.AuthMode,
		JWTSecret:         cfg.JWTSecret,
		JWTIssuer:         cfg.JWTIssuer,
		JWTAudience:       cfg.JWTAudience,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}))
	obsSrv := server.New("observability", cfg.ObsHTTPAddr, initObservabilityRouter(cfg, checks))
	grpcSrv := grpc_transport.New(cfg.ServiceName)

	startServers(cfg, apiSrv, obsSrv, grpcSrv, log)

	<-ctx.Done()
	performGracefulShutdown(apiSrv, obsSrv, grpcSrv, reg, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func getOrGenerateInstanceID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func initRedis(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return client
}

func initStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log *zap.Logger, cleanup *closers) (repository.Repository, []observability.ReadinessCheck) {
	if cfg.StorageDriver == config.StorageBolt {
		store, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			log.Fatal("bolt open failed", zap.String("path", cfg.BoltPath), zap.Error(err))
		}
		cleanup.add(func() { store.Close() })
		log.Info("using embedded store", zap.String("path", cfg.BoltPath))
		return store, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	cleanup.add(func() { db.Close() })

	repo := &postgres.Repository{
		DB:    db,
		Cache: cache.New(redisClient),
		Tx:    &tx.Manager{DB: db},
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("schema migration failed", zap.Error(err))
	}
	return repo, []observability.ReadinessCheck{{Name: "database", Check: repo.Ping}}
}

func initGuard(cfg *config.Config, redisClient *redis.Client) dedup.Guard {
	if cfg.DedupDriver == config.DedupRedis {
		return dedup.NewRedis(redisClient, cfg.DedupTTL)
	}
	return dedup.NewInFlight()
}

func initBroker(cfg *config.Config, log *zap.Logger, cleanup *closers) (broker.Publisher, broker.Subscriber, retry.FailureSink) {
	if cfg.BrokerDriver == config.BrokerMemory {
		mem := broker.NewMemory(cfg.Delivery.ConsumerWorkers, 1024)
		mem.Start()
		cleanup.add(mem.Close)
		log.Info("using in-process broker")
		return mem, mem, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatal("kafka producer failed", zap.Error(err))
	}
	cleanup.add(func() {
		if n := producer.Flush(5000); n > 0 {
			log.Warn("kafka producer closed with undelivered envelopes", zap.Int("count", n))
		}
		producer.Close()
	})

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.Delivery.ConsumerWorkers)
	if err != nil {
		log.Fatal("kafka consumer failed", zap.Error(err))
	}
	cleanup.add(consumer.Close)

	failures := kafka.NewFailureWriter(cfg.KafkaBrokers, cfg.FailureTopic)
	cleanup.add(func() {
		if err := failures.Close(); err != nil {
			log.Error("failure writer close failed", zap.Error(err))
		}
	})

	return producer, consumer, failures
}

func initObservabilityRouter(cfg *config.Config, checks []observability.ReadinessCheck) http.Handler {
	mux := chi.NewRouter()
	mux.Use(observability.MetricsMiddleware(cfg.ServiceName))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler(checks...))
	return mux
}

func startServers(cfg *config.Config, api, obs *server.Server, grpcSrv *grpc_transport.Server, log *zap.Logger) {
	go func() {
		if err := obs.Start(); err != nil {
			log.Error("observability server error", zap.Error(err))
		}
	}()
	go func() {
		if err := api.Start(); err != nil {
			log.Fatal("api server error", zap.Error(err))
		}
	}()
	go grpcSrv.Start(cfg.GRPCAddr)
}

func performGracefulShutdown(api, obs *server.Server, grpcSrv *grpc_transport.Server, reg *websocket.Registry, log *zap.Logger) {
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	grpcSrv.Stop()
	if err := api.Shutdown(ctx); err != nil {
		log.Error("error during api server shutdown", zap.Error(err))
	}
	reg.CloseAll()
	if err := obs.Shutdown(ctx); err != nil {
		log.Error("error during observability server shutdown", zap.Error(err))
	}
	log.Info("shutdown complete, exiting")
}
