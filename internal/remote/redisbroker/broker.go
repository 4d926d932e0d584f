// Package redisbroker разносит сигналы об изменениях коллекций между экземплярами через Redis pub/sub.
package redisbroker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// Broker публикует изменения в каналы вида <prefix><collection>
type Broker struct {
	rdb    *redis.Client
	prefix string
	local  *remote.LocalBroker

	startOnce sync.Once
	startErr  error
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ remote.Broker = (*Broker)(nil)

// New создает новый экземпляр Broker
func New(rdb *redis.Client, prefix string) *Broker {
	return &Broker{
		rdb:    rdb,
		prefix: prefix,
		local:  remote.NewLocalBroker(),
		done:   make(chan struct{}),
	}
}

// Publish отправляет сигнал всем экземплярам, включая текущий
func (b *Broker) Publish(ctx context.Context, collection string) error {
	if err := b.rdb.Publish(ctx, b.prefix+collection, "changed").Err(); err != nil {
		return fmt.Errorf("ошибка публикации в redis: %w", err)
	}
	return nil
}

// Listen регистрирует локального слушателя, при первом вызове подписывается на Redis
func (b *Broker) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	b.startOnce.Do(func() { b.startErr = b.start() })
	if b.startErr != nil {
		return nil, b.startErr
	}
	return b.local.Listen(ctx, collection)
}

func (b *Broker) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.rdb.PSubscribe(ctx, b.prefix+"*")

	// Дожидаемся подтверждения подписки
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		close(b.done)
		return fmt.Errorf("ошибка подписки на redis: %w", err)
	}
	b.cancel = cancel

	ch := pubsub.Channel()
	go func() {
		defer close(b.done)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn().Msg("канал redis pub/sub закрыт")
					return
				}
				b.local.Notify(strings.TrimPrefix(msg.Channel, b.prefix))
			}
		}
	}()
	return nil
}

// Close останавливает чтение из Redis
func (b *Broker) Close() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}
