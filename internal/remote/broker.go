package remote

import (
	"context"
	"sync"
)

// Broker разносит сигналы об изменениях коллекций
type Broker interface {
	// Publish сообщает, что коллекция изменилась
	Publish(ctx context.Context, collection string) error
	// Listen возвращает канал сигналов об изменениях коллекции.
	// Канал закрывается после отмены ctx.
	Listen(ctx context.Context, collection string) (<-chan struct{}, error)
}

// LocalBroker доставляет сигналы внутри процесса
type LocalBroker struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

// NewLocalBroker создает новый экземпляр LocalBroker
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{listeners: make(map[string]map[chan struct{}]struct{})}
}

// Publish будит всех слушателей коллекции, склеивая повторные сигналы
func (b *LocalBroker) Publish(_ context.Context, collection string) error {
	b.Notify(collection)
	return nil
}

// Notify доставляет сигнал без контекста, используется транспортными брокерами
func (b *LocalBroker) Notify(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.listeners[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listen регистрирует слушателя до отмены ctx
func (b *LocalBroker) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if _, ok := b.listeners[collection]; !ok {
		b.listeners[collection] = make(map[chan struct{}]struct{})
	}
	b.listeners[collection][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.listeners[collection], ch)
		if len(b.listeners[collection]) == 0 {
			delete(b.listeners, collection)
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

// Listeners возвращает количество активных слушателей коллекции
func (b *LocalBroker) Listeners(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[collection])
}
