// Package cache хранит последний известный снимок коллекций для гидратации при старте.
// Кэш никогда не является источником истины.
package cache

import (
	"context"
	"sync"
)

// Ключи разделов снимка
const (
	KeyAuth          = "auth-storage"
	KeySkills        = "skills-storage"
	KeyExchanges     = "exchanges-storage"
	KeyMessages      = "messages-storage"
	KeyConversations = "conversations-storage"
	KeyNotifications = "notifications-storage"

	// VersionKey записывается вместе с разделами в одной транзакции
	VersionKey = "snapshot-version"
)

// KV локальное хранилище ключ-значение
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetMany записывает все пары атомарно
	SetMany(ctx context.Context, values map[string]string) error
	Close() error
}

// Memory хранит пары в памяти процесса
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

var _ KV = (*Memory)(nil)

// NewMemory создает пустой кэш в памяти
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.writes++
	return nil
}

func (m *Memory) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	m.writes++
	return nil
}

// Writes возвращает количество выполненных записей
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
