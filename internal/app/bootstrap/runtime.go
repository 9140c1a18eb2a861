package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/alejandria/sales-ai-platform/internal/config"
	"github.com/alejandria/sales-ai-platform/internal/observability/metrics"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

// Runtime holds the shared clients a binary wires its components from.
type Runtime struct {
	Config  *appconfig.Config
	Logger  *logging.Logger
	AWS     aws.Config
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	DB      *sql.DB
	Metrics *metrics.ConversationMetrics

	closers []func()
}

// NewRuntime connects the optional Redis and Postgres backends. reg may be nil
// to skip metrics.
func NewRuntime(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt := &Runtime{Config: cfg, Logger: logger, AWS: awsCfg}
	if reg != nil {
		rt.Metrics = metrics.NewConversationMetrics(reg)
	}

	if rt.needsRedis() {
		rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
		if rt.Redis != nil {
			client := rt.Redis
			rt.closers = append(rt.closers, func() { _ = client.Close() })
		}
	}

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		rt.Pool = pool
		rt.DB = stdlib.OpenDBFromPool(pool)
		rt.closers = append(rt.closers, func() {
			_ = rt.DB.Close()
			pool.Close()
		})
	}
	return rt, nil
}

// Close releases every backend opened by NewRuntime, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *Runtime) needsRedis() bool {
	cfg := rt.Config
	return cfg.HistoryBackend == "redis" || cfg.ProfileCacheBackend == "redis" || strings.TrimSpace(cfg.RedisAddr) != ""
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
