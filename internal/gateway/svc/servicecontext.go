package svc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aetherflow/collabedit/internal/conflict"
	"github.com/aetherflow/collabedit/internal/gateway/config"
	"github.com/aetherflow/collabedit/internal/gateway/jwt"
	"github.com/aetherflow/collabedit/internal/gateway/metrics"
	"github.com/aetherflow/collabedit/internal/gateway/websocket"
	"github.com/aetherflow/collabedit/internal/session"
	"github.com/aetherflow/collabedit/internal/version"
)

// ServiceContext wires the gateway's dependencies together.
type ServiceContext struct {
	Config  config.Config
	Logger  *zap.Logger
	Manager *session.Manager

	Versions version.Store
	WSServer *websocket.Server

	// JWTManager is nil when auth is disabled.
	JWTManager *jwt.Manager

	Metrics          *metrics.Metrics
	MetricsCollector *metrics.Collector

	db          *sql.DB
	redisClient *redis.Client
}

// NewServiceContext builds the service context from configuration.
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	logger, err := buildLogger(c.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	ctx := &ServiceContext{Config: c, Logger: logger}

	if err := ctx.buildVersionStore(c); err != nil {
		return nil, err
	}

	registry, err := ctx.buildRegistry(c)
	if err != nil {
		return nil, err
	}

	resolver := conflict.NewResolver(
		conflict.Strategy(c.Session.ConflictStrategy),
		c.Session.UserPriorities,
		logger,
	)

	manager, err := session.NewManager(&session.ManagerConfig{
		Versions:        ctx.Versions,
		Resolver:        resolver,
		Registry:        registry,
		Logger:          logger,
		IdleGrace:       time.Duration(c.Session.IdleGrace) * time.Second,
		CleanupInterval: time.Duration(c.Session.CleanupInterval) * time.Second,
		CheckpointEvery: c.Session.CheckpointEvery,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	ctx.Manager = manager

	ctx.WSServer = websocket.NewServer(manager, logger)

	if c.JWT.Secret != "" {
		ctx.JWTManager = jwt.NewManager(c.JWT.Secret, c.JWT.Expire, c.JWT.RefreshExpire, c.JWT.Issuer)
		jwtManager := ctx.JWTManager
		ctx.WSServer.SetAuthFunc(func(token string) (string, error) {
			claims, err := jwtManager.VerifyToken(token)
			if err != nil {
				return "", err
			}
			return claims.UserID, nil
		})
	} else {
		logger.Warn("JWT secret not configured, authentication disabled")
	}

	if c.Metrics.Enable {
		ctx.Metrics = metrics.NewMetrics(c.Metrics.Namespace, c.Metrics.Subsystem)
		ctx.MetricsCollector = metrics.NewCollector(ctx.Metrics, ctx, logger)
		ctx.MetricsCollector.Start()
	}

	return ctx, nil
}

// CollectStats implements metrics.StatsSource.
func (ctx *ServiceContext) CollectStats() (sessions, participants, locks, connections int) {
	stats := ctx.Manager.GetStats()
	hubStats := ctx.WSServer.GetStats()
	conns, _ := hubStats["total_connections"].(int)
	return stats.Sessions, stats.Participants, stats.Locks, conns
}

// Close releases everything the context owns.
func (ctx *ServiceContext) Close() {
	if ctx.MetricsCollector != nil {
		ctx.MetricsCollector.Stop()
	}

	if ctx.WSServer != nil {
		ctx.WSServer.Close()
	}

	if ctx.Manager != nil {
		if err := ctx.Manager.Close(); err != nil {
			ctx.Logger.Error("failed to close session manager", zap.Error(err))
		}
	}

	if ctx.db != nil {
		if err := ctx.db.Close(); err != nil {
			ctx.Logger.Error("failed to close database", zap.Error(err))
		}
	}

	if ctx.redisClient != nil {
		if err := ctx.redisClient.Close(); err != nil {
			ctx.Logger.Error("failed to close redis client", zap.Error(err))
		}
	}

	if ctx.Logger != nil {
		_ = ctx.Logger.Sync()
	}
}

func (ctx *ServiceContext) buildVersionStore(c config.Config) error {
	switch c.Storage.Type {
	case "postgres":
		db, err := sql.Open("postgres", c.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		db.SetMaxOpenConns(c.Storage.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(c.Storage.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(c.Storage.Postgres.ConnMaxLifetime) * time.Second)

		store, err := version.NewPostgresStore(&version.PostgresStoreConfig{
			DB:     db,
			Logger: ctx.Logger,
		})
		if err != nil {
			db.Close()
			return fmt.Errorf("failed to create postgres store: %w", err)
		}
		if err := store.InitSchema(context.Background()); err != nil {
			db.Close()
			return fmt.Errorf("failed to init schema: %w", err)
		}

		ctx.db = db
		ctx.Versions = store
		ctx.Logger.Info("using postgres version store")

	default:
		ctx.Versions = version.NewMemoryStore()
		ctx.Logger.Info("using in-memory version store")
	}

	return nil
}

func (ctx *ServiceContext) buildRegistry(c config.Config) (session.Registry, error) {
	switch c.Registry.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Registry.Redis.Addr,
			Password: c.Registry.Redis.Password,
			DB:       c.Registry.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		registry, err := session.NewRedisRegistry(&session.RedisRegistryConfig{
			Client: client,
			Logger: ctx.Logger,
			TTL:    time.Duration(c.Registry.Redis.TTL) * time.Second,
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create redis registry: %w", err)
		}

		ctx.redisClient = client
		ctx.Logger.Info("using redis session registry",
			zap.String("addr", c.Registry.Redis.Addr))
		return registry, nil

	default:
		ctx.Logger.Info("using in-memory session registry")
		return session.NewMemoryRegistry(), nil
	}
}

// buildLogger constructs the zap logger from the log section.
func buildLogger(c config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if c.Mode == "file" {
		zapConfig.OutputPaths = []string{c.Path + "/gateway.log"}
		zapConfig.ErrorOutputPaths = []string{c.Path + "/gateway-error.log"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named(c.ServiceName), nil
}
