// Package memory реализует документную базу в памяти процесса.
// Используется в тестах и при REMOTE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// Backend хранит документы в памяти
type Backend struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	writes      map[string]int
	writeErrs   map[string]error
	queryErr    func(q remote.Query) error
}

var _ remote.Backend = (*Backend)(nil)

// New создает пустое хранилище
func New() *Backend {
	return &Backend{
		collections: make(map[string]map[string]map[string]any),
		writes:      make(map[string]int),
		writeErrs:   make(map[string]error),
	}
}

// FailWrites заставляет все записи в коллекцию завершаться ошибкой; nil снимает сбой
func (b *Backend) FailWrites(collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.writeErrs, collection)
		return
	}
	b.writeErrs[collection] = err
}

// FailQueries подставляет проверку, которая может отклонить запрос
func (b *Backend) FailQueries(fn func(q remote.Query) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queryErr = fn
}

// Writes возвращает количество успешных записей в коллекцию
func (b *Backend) Writes(collection string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes[collection]
}

func (b *Backend) Create(ctx context.Context, collection, id string, doc any) error {
	fields, err := remote.ToFields(doc)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeCheck(ctx, collection); err != nil {
		return err
	}
	docs := b.collection(collection)
	if _, exists := docs[id]; exists {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrAlreadyExists)
	}
	docs[id] = fields
	b.writes[collection]++
	return nil
}

func (b *Backend) Set(ctx context.Context, collection, id string, doc any) error {
	fields, err := remote.ToFields(doc)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeCheck(ctx, collection); err != nil {
		return err
	}
	b.collection(collection)[id] = fields
	b.writes[collection]++
	return nil
}

func (b *Backend) Update(ctx context.Context, collection, id string, patch remote.Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeCheck(ctx, collection); err != nil {
		return err
	}
	docs := b.collection(collection)
	current, ok := docs[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	next, err := remote.ApplyPatch(current, patch)
	if err != nil {
		return err
	}
	docs[id] = next
	b.writes[collection]++
	return nil
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeCheck(ctx, collection); err != nil {
		return err
	}
	docs := b.collection(collection)
	if _, ok := docs[id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	delete(docs, id)
	b.writes[collection]++
	return nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return remote.Document{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	fields, ok := b.collections[collection][id]
	if !ok {
		return remote.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return remote.Document{ID: id, Fields: clone(fields)}, nil
}

func (b *Backend) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.queryErr != nil {
		if err := b.queryErr(q); err != nil {
			return nil, err
		}
	}
	docs := make([]remote.Document, 0, len(b.collections[q.Collection]))
	for id, fields := range b.collections[q.Collection] {
		docs = append(docs, remote.Document{ID: id, Fields: clone(fields)})
	}
	return remote.Apply(docs, q), nil
}

func (b *Backend) writeCheck(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.writeErrs[collection]
}

func (b *Backend) collection(name string) map[string]map[string]any {
	docs, ok := b.collections[name]
	if !ok {
		docs = make(map[string]map[string]any)
		b.collections[name] = docs
	}
	return docs
}

func clone(fields map[string]any) map[string]any {
	out, err := remote.ToFields(fields)
	if err != nil {
		// поля уже прошли через JSON при записи
		panic(err)
	}
	return out
}
