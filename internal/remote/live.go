package remote

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Live превращает Backend в Source: после каждой записи публикует сигнал,
// а подписки перечитывают запрос при каждом сигнале по своей коллекции.
type Live struct {
	Backend
	broker Broker
}

// NewLive создает новый экземпляр Live
func NewLive(backend Backend, broker Broker) *Live {
	return &Live{Backend: backend, broker: broker}
}

func (l *Live) Create(ctx context.Context, collection, id string, doc any) error {
	if err := l.Backend.Create(ctx, collection, id, doc); err != nil {
		return err
	}
	l.publish(ctx, collection)
	return nil
}

func (l *Live) Set(ctx context.Context, collection, id string, doc any) error {
	if err := l.Backend.Set(ctx, collection, id, doc); err != nil {
		return err
	}
	l.publish(ctx, collection)
	return nil
}

func (l *Live) Update(ctx context.Context, collection, id string, patch Patch) error {
	if err := l.Backend.Update(ctx, collection, id, patch); err != nil {
		return err
	}
	l.publish(ctx, collection)
	return nil
}

func (l *Live) Delete(ctx context.Context, collection, id string) error {
	if err := l.Backend.Delete(ctx, collection, id); err != nil {
		return err
	}
	l.publish(ctx, collection)
	return nil
}

// publish не влияет на результат записи: подписчики догонят при следующем сигнале
func (l *Live) publish(ctx context.Context, collection string) {
	if err := l.broker.Publish(context.WithoutCancel(ctx), collection); err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("не удалось опубликовать изменение коллекции")
	}
}

// Subscribe открывает живой запрос
func (l *Live) Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() { once.Do(cancel) }

	if err := q.Validate(); err != nil {
		go onError(err)
		stop()
		return stop
	}

	// Слушатель регистрируется до первого чтения, чтобы не пропустить изменения
	changes, err := l.broker.Listen(ctx, q.Collection)
	if err != nil {
		go onError(err)
		stop()
		return stop
	}

	go func() {
		defer stop()

		deliver := func() bool {
			docs, err := l.Backend.Query(ctx, q)
			if ctx.Err() != nil {
				return false
			}
			if err != nil {
				onError(err)
				return false
			}
			onSnapshot(docs)
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok || !deliver() {
					return
				}
			}
		}
	}()

	return stop
}
