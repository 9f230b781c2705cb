package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dtfcapture/internal/config"
	"dtfcapture/internal/constants"
	"dtfcapture/internal/logger"
	"dtfcapture/pkg/migrations"
	"dtfcapture/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
	Retry  *retry.Engine
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger, engine *retry.Engine) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
		Retry:  engine,
	}
}

// InitRedis returns nil when no Redis host is configured.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if dc.Config.Database.Redis.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	err := dc.Retry.Do(ctx, retry.KindPersistenceConnect, "bootstrap.InitRedis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

// PostgresDSN builds the connection URL, escaping credentials.
func PostgresDSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// InitPostgreSQL opens the state and price store and, when enabled, migrates it.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.Config.Database.Postgres

	db, err := sql.Open("postgres", PostgresDSN(pg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pg.MaxOpenConns)
		db.SetMaxIdleConns(pg.MaxOpenConns)
	}

	err = dc.Retry.Do(ctx, retry.KindPersistenceConnect, "bootstrap.InitPostgreSQL", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			db.Close()
			return nil, err
		}
		if err := migrations.EnsurePriceTable(ctx, db, dc.Config.Capture.PriceTable); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

// InitMongoDB returns nil when no MongoDB URI is configured.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = dc.Retry.Do(ctx, retry.KindPersistenceConnect, "bootstrap.InitMongoDB", func(ctx context.Context) error {
		return mongoClient.Ping(ctx, nil)
	})
	if err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		db := mongoClient.Database(dc.MongoDatabase())
		if err := migrations.EnsureArtifactCollection(ctx, db, dc.Config.Artifact.Collection); err != nil {
			mongoClient.Disconnect(ctx)
			return nil, err
		}
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

func (dc *DatabaseConnector) MongoDatabase() string {
	if dc.Config.Database.MongoDB.Database != "" {
		return dc.Config.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, redis *redis.Client, postgres *sql.DB, mongo *mongo.Client) []error {
	var errs []error

	if redis != nil {
		if err := redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if postgres != nil {
		if err := postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if mongo != nil {
		if err := mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
