package goSession

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/redis/go-redis/v9"
)

// openStore builds the store named by cfg. The returned redis client is non-nil
// only when openStore dialed it, and the caller owns closing it.
func openStore(cfg StorageConfig, rdb redis.UniversalClient) (tokenstore.Store, redis.UniversalClient, error) {
	switch cfg.Driver {
	case StorageMemory:
		s, err := tokenstore.NewMemoryStore(cfg.Key)
		return s, nil, err
	case StorageFile:
		dir := cfg.Dir
		if dir == "" {
			dir = tokenstore.DefaultDir()
		}
		s, err := tokenstore.NewFileStore(dir, cfg.Key)
		return s, nil, err
	case StorageRedis:
		var owned redis.UniversalClient
		if rdb == nil {
			owned = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			rdb = owned
		}
		s, err := tokenstore.NewRedisStore(rdb, cfg.RedisPrefix, cfg.Key)
		if err != nil && owned != nil {
			_ = owned.Close()
			owned = nil
		}
		return s, owned, err
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// watchStore follows a file store for changes made by other processes. Stores of
// other kinds are not watched.
func (c *Client) watchStore(log *slog.Logger) error {
	fs, ok := c.store.(*tokenstore.FileStore)
	if !ok || !c.cfg.Storage.Watch {
		return nil
	}
	w, err := tokenstore.Watch(fs)
	if err != nil {
		return err
	}
	c.watcher = w

	ctx, cancel := context.WithCancel(context.Background())
	c.stopFollow = cancel
	c.followDone = make(chan struct{})
	go func() {
		defer close(c.followDone)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-w.Errors():
					if !ok {
						return
					}
					log.Warn("gosession.watch.error", "err", err)
				}
			}
		}()
		c.session.Follow(ctx, w.Changes())
	}()
	return nil
}
