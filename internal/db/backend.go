package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/config"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	redisclient "github.com/hackgods/dental-clinic-portal/internal/redis"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

// Backend is the persistence a process runs on: the document store plus the
// bucket locker that serializes slot claims.
type Backend struct {
	Docs   store.Store
	Locker appointment.Locker

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Open connects the store selected by cfg.StoreDriver. When Redis is configured
// it also backs the bucket locker; otherwise claims are serialized in-process.
func Open(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Backend, error) {
	if logger == nil {
		logger = logging.Default()
	}
	b := &Backend{}

	if cfg.UsesRedis() {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		b.redis = rdb
		b.Locker = redisclient.NewLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	} else {
		b.Locker = appointment.NewLocalLocker()
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := ConnectPostgres(pgCtx, PoolOptions{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConn}, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("postgres connection error: %w", err)
		}
		b.pool = pool
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(pgCtx); err != nil {
			b.Close()
			return nil, err
		}
		b.Docs = pg
	case config.DriverRedis:
		b.Docs = store.NewRedisStore(b.redis)
	default:
		logger.Warn("using in-memory store; data is lost on exit")
		b.Docs = store.NewMemoryStore()
	}

	return b, nil
}

func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
