package factory

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/PipeOpsHQ/financeira-functions/internal/config"
	"github.com/PipeOpsHQ/financeira-functions/store"
	firestorestore "github.com/PipeOpsHQ/financeira-functions/store/firestore"
	"github.com/PipeOpsHQ/financeira-functions/store/memory"
	redisstore "github.com/PipeOpsHQ/financeira-functions/store/redis"
	sqlitestore "github.com/PipeOpsHQ/financeira-functions/store/sqlite"
)

const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendMemory    = "memory"
)

// FromConfig opens the store named by cfg.StoreBackend.
func FromConfig(ctx context.Context, cfg config.Config, opts ...option.ClientOption) (store.Store, error) {
	switch cfg.StoreBackend {
	case BackendFirestore, "":
		return firestorestore.Open(ctx, cfg.ProjectID(), opts...)

	case BackendSQLite:
		return sqlitestore.New(cfg.SQLitePath)

	case BackendRedis:
		return redisstore.New(
			cfg.RedisAddr,
			redisstore.WithPassword(cfg.RedisPassword),
			redisstore.WithDB(cfg.RedisDB),
			redisstore.WithPrefix(cfg.RedisPrefix),
		)

	case BackendMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported FUNCTIONS_STORE_BACKEND %q (use firestore, sqlite, redis, or memory)", cfg.StoreBackend)
	}
}
