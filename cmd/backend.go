package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fjod/go_cart/lineitems/configs"
	"github.com/fjod/go_cart/lineitems/internal/persistence"
	"github.com/redis/go-redis/v9"
)

// backend is the KV the carts persist to plus whatever needs closing on
// shutdown.
type backend struct {
	kv      persistence.KV
	closers []func(context.Context) error
}

func (b *backend) Close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}
}

func openBackend(ctx context.Context, cfg configs.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	var redisKV *persistence.Redis
	if cfg.Store.Backend == "redis" || cfg.Store.Cache {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			b.Close(ctx)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		redisKV = persistence.NewRedis(client, cfg.Redis.TTL)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	kv, err := openDurable(ctx, cfg, b, redisKV, logger)
	if err != nil {
		b.Close(ctx)
		return nil, err
	}

	if cfg.Store.Cache {
		kv = persistence.NewCached(kv, redisKV, logger)
	}
	if cfg.Store.Breaker.Enabled {
		kv = persistence.NewBreaker("cart-"+cfg.Store.Backend, kv, persistence.BreakerConfig{
			FailureThreshold: cfg.Store.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Store.Breaker.OpenTimeout,
		}, logger)
	}
	b.kv = kv
	return b, nil
}

func openDurable(ctx context.Context, cfg configs.Config, b *backend, redisKV *persistence.Redis, logger *slog.Logger) (persistence.KV, error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Warn("carts are kept in memory only")
		return persistence.NewMemory(), nil

	case "redis":
		return redisKV, nil

	case "mongo":
		db, err := persistence.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
		m := persistence.NewMongo(db)
		if err := m.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
		return m, nil

	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
		db, err := persistence.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { return db.Close() })
		if err := persistence.RunSQLiteMigrations(db); err != nil {
			return nil, err
		}
		logger.Info("opened sqlite", "path", cfg.SQLite.Path)
		return persistence.NewSQLite(db), nil

	case "postgres":
		db, err := persistence.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { return db.Close() })
		if err := persistence.RunPostgresMigrations(db); err != nil {
			return nil, err
		}
		logger.Info("connected to postgres")
		return persistence.NewPostgres(db), nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
}
