package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/media"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/remote/dynamo"
	"github.com/rajivgeraev/skillswap-api/internal/remote/memory"
	"github.com/rajivgeraev/skillswap-api/internal/remote/redisbroker"
)

// openBackend выбирает хранилище документов по REMOTE_DRIVER
func (a *App) openBackend(ctx context.Context, cfg config.RemoteConfig) (remote.Backend, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.onClose(pool.Close)
		docs := db.NewDocumentStore(pool)
		if err := docs.Migrate(ctx); err != nil {
			return nil, err
		}
		return docs, nil
	case "dynamodb":
		return dynamo.NewFromConfig(ctx, cfg.Dynamo.Region, cfg.Dynamo.Endpoint, cfg.Dynamo.Table)
	default:
		return nil, fmt.Errorf("неизвестный REMOTE_DRIVER %q", cfg.Driver)
	}
}

// openBroker выбирает канал сигналов об изменениях по BROKER_DRIVER
func (a *App) openBroker(cfg *config.Config) (remote.Broker, error) {
	switch cfg.Broker.Driver {
	case "local":
		return remote.NewLocalBroker(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Broker.Redis.Addr,
			Password: cfg.Broker.Redis.Password,
			DB:       cfg.Broker.Redis.DB,
		})
		broker := redisbroker.New(rdb, cfg.Broker.Redis.Prefix)
		a.onClose(func() {
			broker.Close()
			rdb.Close()
		})
		return broker, nil
	case "postgres":
		listener, err := db.NewListener(cfg.Remote.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { listener.Close() })
		return listener, nil
	default:
		return nil, fmt.Errorf("неизвестный BROKER_DRIVER %q", cfg.Broker.Driver)
	}
}

// openCache выбирает локальный кэш по CACHE_DRIVER
func (a *App) openCache(cfg config.CacheConfig) (cache.KV, error) {
	var kv cache.KV
	switch cfg.Driver {
	case "memory":
		kv = cache.NewMemory()
	case "sqlite":
		s, err := cache.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		kv = s
	default:
		return nil, fmt.Errorf("неизвестный CACHE_DRIVER %q", cfg.Driver)
	}
	a.onClose(func() { kv.Close() })
	return kv, nil
}

// openUploader выбирает хостинг вложений по MEDIA_DRIVER
func openUploader(ctx context.Context, cfg config.MediaConfig) (media.Uploader, error) {
	switch cfg.Driver {
	case "memory":
		return media.NewMemory(""), nil
	case "cloudinary":
		return media.NewCloudinary(cfg.Cloudinary)
	case "s3":
		return media.NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("неизвестный MEDIA_DRIVER %q", cfg.Driver)
	}
}
