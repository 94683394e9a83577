package initialization

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/storage/memory"
	"github.com/flowbaker/autoflow/pkg/storage/postgresql"
	"github.com/flowbaker/autoflow/pkg/storage/redis"
)

// Storage is implemented by every storage driver.
type Storage interface {
	domain.WorkflowStore
	domain.ShortLock
	domain.OutputStore
	domain.UsageRecorder
	ExecutionStore() domain.ExecutionStore
	Close() error
}

var (
	_ Storage = (*memory.Store)(nil)
	_ Storage = (*redis.Store)(nil)
	_ Storage = (*postgresql.Store)(nil)
)

func OpenStorage(ctx context.Context, config domain.StorageConfig, clk clock.Clock) (Storage, error) {
	switch config.Driver {
	case domain.StorageDriverMemory, "":
		return memory.New(memory.StoreOpts{Clock: clk}), nil
	case domain.StorageDriverRedis:
		store, err := redis.New(ctx, redis.Opts{
			Addr:      config.Redis.Addr,
			Username:  config.Redis.Username,
			Password:  config.Redis.Password,
			DB:        config.Redis.DB,
			KeyPrefix: config.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}

		return store, nil
	case domain.StorageDriverPostgreSQL:
		store, err := postgresql.New(ctx, postgresql.Opts{
			URI:         config.PostgreSQL.URI,
			TablePrefix: config.PostgreSQL.TablePrefix,
		})
		if err != nil {
			return nil, err
		}

		return store, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", config.Driver)
}
