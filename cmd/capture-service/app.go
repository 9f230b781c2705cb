package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"dtfcapture/internal/api"
	"dtfcapture/internal/artifact"
	"dtfcapture/internal/capture"
	"dtfcapture/internal/config"
	"dtfcapture/internal/constants"
	"dtfcapture/internal/downstream"
	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/messaging"
	"dtfcapture/internal/notification"
	"dtfcapture/internal/prices"
	"dtfcapture/internal/secrets"
	"dtfcapture/internal/source"
	"dtfcapture/internal/state"
	"dtfcapture/pkg/bootstrap"
	"dtfcapture/pkg/concurrency"
	"dtfcapture/pkg/health"
	"dtfcapture/pkg/logging"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/middleware"
	"dtfcapture/pkg/ratelimit"
	"dtfcapture/pkg/retry"
	"dtfcapture/pkg/tracing"
)

const serviceName = "capture-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	mongoClient    *mongo.Client
	retry          *retry.Engine
	tracerProvider *tracing.TracerProvider

	source    *source.Client
	states    *state.PostgresRepository
	persister *prices.Persister
	notifier  notification.Notifier
	workflow  *capture.Workflow

	reprocessPool *concurrency.WorkerPool
	server        *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

// Initialize wires the capture workflow. withBroker also opens the Kafka
// consumer and producer used by the serve command; one-shot commands only
// open a producer when notifications go through Kafka.
func (a *App) Initialize(ctx context.Context, withBroker bool) error {
	if err := a.ResolveSecrets(ctx, secrets.NewEnvProvider(a.Config)); err != nil {
		return err
	}

	engine, err := newRetryEngine(a.Config.Retry, a.Logger)
	if err != nil {
		return err
	}
	a.retry = engine
	a.dbConnector = bootstrap.NewDatabaseConnector(a.Config, a.Logger, engine)

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterCaptureMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterAPIMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	switch {
	case withBroker:
		if err := a.InitBroker(serviceName); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	case a.Config.Notification.Backend == "kafka":
		if err := a.InitProducer(); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	}

	if err := a.initWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Notification.Dedup.Backend == "redis" {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
	}

	if a.Config.Artifact.Upload == "mongodb" {
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = client
	}
	return nil
}

func (a *App) initWorkflow() error {
	notifier, err := newNotifier(a.Config.Notification, a.Producer, a.retry, a.Logger)
	if err != nil {
		return err
	}
	a.notifier = notifier

	a.source = source.NewClient(source.Config{
		BaseURL: a.Config.Source.BaseURL,
		Timeout: a.Config.Source.Timeout,
	}, a.retry, newBreaker("source", a.Config.CircuitBreaker, a.Logger), a.Logger)

	sender := downstream.NewHTTPSender(downstream.Config{
		URL:         a.Config.Downstream.URL,
		Timeout:     a.Config.Downstream.Timeout,
		TokenEnvVar: a.Config.Downstream.TokenEnvVar,
	}, a.retry, newBreaker("downstream", a.Config.CircuitBreaker, a.Logger), a.Logger)

	priceRepo, err := prices.NewRepository(a.db, a.retry, a.Config.Capture.PriceTable)
	if err != nil {
		return err
	}
	a.persister = prices.NewPersister(priceRepo, a.Config.Capture.BatchSize, a.Config.Capture.Parallelism, a.Logger)
	a.states = state.NewRepository(a.db, a.retry)

	var uploader artifact.Uploader = artifact.NopUploader{Logger: a.Logger}
	if a.mongoClient != nil {
		uploader = artifact.NewMongoUploader(
			a.mongoClient.Database(a.dbConnector.MongoDatabase()),
			a.Config.Artifact.Collection,
			a.Config.Artifact.Environment,
			a.retry,
			a.Logger,
		)
	}

	a.workflow = capture.NewWorkflow(capture.Dependencies{
		Source:    a.source,
		Persister: a.persister,
		Prices:    priceRepo,
		States:    a.states,
		Artifacts: artifact.NewFileStore(a.Config.Artifact.Directory),
		Uploader:  uploader,
		Sender:    sender,
		Notifier:  notifier,
		Logger:    a.Logger,
	})
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))

	router.GET("/health", health.Handler(healthRegistry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.RegisterDocs(router)

	apiGroup := router.Group("/")
	if a.Config.API.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.API.RateLimit)
		apiGroup.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	a.reprocessPool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "reprocess",
		MaxWorkers:  1,
		MaxCapacity: 16,
	}, a.Logger)
	api.NewHandler(ctx, a.source, a.workflow, a.states, a.reprocessPool, a.notifier, a.Logger).RegisterRoutes(apiGroup)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

// Serve consumes triggers and serves the API until ctx is done or either fails.
// A consumer that stops on an unacknowledged message is reported as critical.
func (a *App) Serve(ctx context.Context) error {
	a.initHTTPServer(ctx)

	consumer := messaging.NewConsumer(messaging.Config{
		InputTopic:                   a.Config.Broker.Kafka.InputTopic,
		DLQTopic:                     a.Config.Broker.Kafka.DLQTopic,
		MaxRetryAttempts:             a.Config.Capture.MaxRetryAttempts,
		RequeueNotificationThreshold: a.Config.Capture.RequeueNotificationThreshold,
	}, a.workflow, a.Producer, a.notifier, newFlagStore(a.Config.Notification.Dedup, a.redis), a.retry, a.Logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		consumeCtx := logging.WithServiceName(gCtx, serviceName)
		err := a.Consumer.Consume(consumeCtx, consumer.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.workflow.NotifyCritical(context.WithoutCancel(consumeCtx), flow.Context{}, err)
			return err
		}
		return nil
	})

	return g.Wait()
}

// Reprocess replays one flow synchronously.
func (a *App) Reprocess(ctx context.Context, captureDate *string, flowID *string) (flow.Context, error) {
	req := api.ReprocessRequest{CaptureDate: captureDate, FlowID: flowID}
	date, id, err := req.Parse()
	if err != nil {
		return flow.Context{}, err
	}
	return a.workflow.Reprocess(ctx, date, id)
}

func (a *App) Sweep(ctx context.Context, limit int) ([]*state.State, error) {
	return a.states.ListFailedOrIncomplete(ctx, limit)
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.reprocessPool != nil {
			a.reprocessPool.Stop()
		}
		if a.persister != nil {
			a.persister.Close()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.dbConnector != nil {
			errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)
		}
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
