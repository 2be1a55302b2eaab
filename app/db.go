package app

import (
	"context"
	"fmt"

	"github.com/aloewind/exportremix-sub001/app/config"
	"github.com/aloewind/exportremix-sub001/app/store"

	"go.uber.org/zap"
)

// OpenStore connects the configured quota backend. The returned close func
// releases its connections.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	switch cfg.Quota.Backend {
	case "postgres":
		db, err := store.Open(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("connected to Postgres", zap.String("host", cfg.DB.URL), zap.String("db", cfg.DB.Name))
		return pg, db.Close, nil

	case "redis":
		r, err := store.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("dial redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
		return r, r.Close, nil

	case "memory":
		logger.Warn("using in-memory quota store; counters reset on restart")
		return store.NewMemory(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown quota backend %q", cfg.Quota.Backend)
}
