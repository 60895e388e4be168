package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/tokendesk/internal/config"
	"github.com/jmcleod/tokendesk/storage"
	bboltstorage "github.com/jmcleod/tokendesk/storage/bbolt"
	"github.com/jmcleod/tokendesk/storage/memory"
	pgstorage "github.com/jmcleod/tokendesk/storage/postgres"
	redisstorage "github.com/jmcleod/tokendesk/storage/redis"
)

// openStore builds the session store selected by c, sealed when a store key
// is configured.
func openStore(ctx context.Context, c config.Config) (storage.Store, error) {
	var (
		st  storage.Store
		err error
	)
	switch c.Store.Backend {
	case config.BackendBolt:
		path := c.BoltPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err = bboltstorage.NewStoreFromFile(path, nil)
	case config.BackendMemory:
		st = memory.NewStore()
	case config.BackendRedis:
		st, err = redisstorage.NewStoreFromAddr(ctx, c.Store.RedisAddr, c.Store.RedisPassword, c.Store.RedisDB, c.Store.RedisPrefix)
	case config.BackendPostgres:
		st, err = pgstorage.NewStoreFromDSN(ctx, c.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, c.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.Store.Backend, err)
	}

	key, err := c.StoreKey()
	if err != nil {
		st.Close()
		return nil, err
	}
	if key == nil {
		return st, nil
	}
	sealed, err := storage.NewSealed(st, key)
	if err != nil {
		st.Close()
		return nil, err
	}
	return sealed, nil
}
