// Package store содержит хранилища сущностей: канонические коллекции в памяти,
// в которые сливаются снимки живых подписок и подтвержденные записи.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/metrics"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// Entity любая сущность с непрозрачным строковым id
type Entity interface {
	EntityID() string
}

// Mode определяет, как снимок соотносится с коллекцией
type Mode int

const (
	// Partial снимок одного из нескольких запросов, питающих коллекцию
	Partial Mode = iota
	// Complete снимок единственного запроса, описывающего всю коллекцию
	Complete
)

// State снимок состояния для UI
type State[T Entity] struct {
	Items   []T    `json:"items"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Version uint64 `json:"version"`
}

// Change описывает зафиксированное изменение коллекции
type Change struct {
	Store    string   `json:"store"`
	Version  uint64   `json:"version"`
	Upserted []string `json:"upserted,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// Collection дедуплицированная коллекция по id
type Collection[T Entity] struct {
	name    string
	less    func(a, b T) bool
	metrics *metrics.Metrics

	mu        sync.RWMutex
	items     map[string]T
	encoded   map[string][]byte
	claims    map[string]map[string]struct{} // источник -> id, доставленные им в последнем снимке
	loading   bool
	err       error
	version   uint64
	inflight  map[string]struct{}
	listeners map[int]func(Change)
	nextID    int
	onCommit  func()
}

// NewCollection создает пустую коллекцию; less задает порядок выдачи
func NewCollection[T Entity](name string, less func(a, b T) bool, m *metrics.Metrics) *Collection[T] {
	return &Collection[T]{
		name:      name,
		less:      less,
		metrics:   m,
		items:     make(map[string]T),
		encoded:   make(map[string][]byte),
		claims:    make(map[string]map[string]struct{}),
		inflight:  make(map[string]struct{}),
		listeners: make(map[int]func(Change)),
	}
}

// Name возвращает имя коллекции
func (c *Collection[T]) Name() string { return c.name }

// OnCommit задает действие после каждого зафиксированного изменения
func (c *Collection[T]) OnCommit(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = fn
}

// ApplyRemoteSnapshot сливает снимок источника source в коллекцию.
//
// Каждый id из items после вызова указывает ровно на переданное значение.
// В режиме Complete отсутствующие id удаляются. В режиме Partial удаляются только
// id, которые source доставлял раньше и которые больше не доставляет ни один источник.
// Если ничего не изменилось, версия, слушатели и кэш не затрагиваются.
func (c *Collection[T]) ApplyRemoteSnapshot(source string, items []T, mode Mode) bool {
	c.mu.Lock()

	incoming := make(map[string]struct{}, len(items))
	var upserted, removed []string
	for _, item := range items {
		id := item.EntityID()
		if id == "" {
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			log.Warn().Err(err).Str("store", c.name).Str("id", id).Msg("не удалось сериализовать сущность")
			continue
		}
		incoming[id] = struct{}{}
		if prev, ok := c.encoded[id]; ok && bytes.Equal(prev, raw) {
			continue
		}
		c.items[id] = item
		c.encoded[id] = raw
		upserted = append(upserted, id)
	}

	if mode == Complete {
		for id := range c.items {
			if _, ok := incoming[id]; !ok {
				c.deleteLocked(id)
				removed = append(removed, id)
			}
		}
		c.claims = map[string]map[string]struct{}{source: incoming}
	} else {
		for id := range c.claims[source] {
			if _, still := incoming[id]; still || c.claimedElsewhere(id, source) {
				continue
			}
			if _, ok := c.items[id]; ok {
				c.deleteLocked(id)
				removed = append(removed, id)
			}
		}
		c.claims[source] = incoming
	}

	commit := c.commitLocked(upserted, removed)
	c.mu.Unlock()

	c.metrics.Snapshot(c.name, commit != nil)
	if commit != nil {
		commit()
		return true
	}
	return false
}

// ApplyDocuments декодирует документы подписки и применяет их как снимок
func (c *Collection[T]) ApplyDocuments(source string, docs []remote.Document, complete bool) {
	items := make([]T, 0, len(docs))
	for _, d := range docs {
		var item T
		if err := d.Decode(&item); err != nil {
			log.Warn().Err(err).Str("store", c.name).Str("id", d.ID).Msg("пропускаем некорректный документ")
			continue
		}
		items = append(items, item)
	}
	mode := Partial
	if complete {
		mode = Complete
	}
	c.ApplyRemoteSnapshot(source, items, mode)
	c.SetLoading(false)
}

// Put записывает подтвержденную удаленным источником сущность
func (c *Collection[T]) Put(item T) bool {
	id := item.EntityID()
	raw, err := json.Marshal(item)
	if err != nil || id == "" {
		return false
	}
	c.mu.Lock()
	if prev, ok := c.encoded[id]; ok && bytes.Equal(prev, raw) {
		c.mu.Unlock()
		return false
	}
	c.items[id] = item
	c.encoded[id] = raw
	commit := c.commitLocked([]string{id}, nil)
	c.mu.Unlock()
	commit()
	return true
}

// Remove удаляет сущность после подтвержденного удаления в удаленном источнике
func (c *Collection[T]) Remove(id string) bool {
	c.mu.Lock()
	if _, ok := c.items[id]; !ok {
		c.mu.Unlock()
		return false
	}
	c.deleteLocked(id)
	for _, ids := range c.claims {
		delete(ids, id)
	}
	commit := c.commitLocked(nil, []string{id})
	c.mu.Unlock()
	commit()
	return true
}

// Hydrate заполняет коллекцию из локального кэша без повторной записи в кэш
func (c *Collection[T]) Hydrate(items []T) {
	c.mu.Lock()
	c.items = make(map[string]T, len(items))
	c.encoded = make(map[string][]byte, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil || item.EntityID() == "" {
			continue
		}
		c.items[item.EntityID()] = item
		c.encoded[item.EntityID()] = raw
		ids = append(ids, item.EntityID())
	}
	c.version++
	change := Change{Store: c.name, Version: c.version, Upserted: ids}
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// Reset очищает коллекцию при смене пользователя
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	removed := make([]string, 0, len(c.items))
	for id := range c.items {
		removed = append(removed, id)
	}
	c.items = make(map[string]T)
	c.encoded = make(map[string][]byte)
	c.claims = make(map[string]map[string]struct{})
	c.err = nil
	c.loading = false
	commit := c.commitLocked(nil, removed)
	c.mu.Unlock()
	if commit != nil {
		commit()
	}
}

// Get возвращает сущность по id
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// Items возвращает все сущности в стабильном порядке
func (c *Collection[T]) Items() []T {
	return c.Select(nil)
}

// Select возвращает сущности, удовлетворяющие pred, в стабильном порядке
func (c *Collection[T]) Select(pred func(T) bool) []T {
	c.mu.RLock()
	out := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if pred == nil || pred(item) {
			out = append(out, item)
		}
	}
	c.mu.RUnlock()
	c.sort(out)
	return out
}

// Len возвращает размер коллекции
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Version возвращает номер последнего изменения
func (c *Collection[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// State возвращает снимок для UI
func (c *Collection[T]) State() State[T] {
	items := c.Items()
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := State[T]{Items: items, Loading: c.loading, Version: c.version}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	return st
}

// SetLoading выставляет флаг загрузки
func (c *Collection[T]) SetLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = loading
}

// ReportError сохраняет ошибку в состоянии коллекции, данные остаются видимыми
func (c *Collection[T]) ReportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.loading = false
}

// Err возвращает последнюю ошибку коллекции
func (c *Collection[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// ClearError сбрасывает ошибку
func (c *Collection[T]) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = nil
}

// Fingerprint ключ защиты от повторной операции
func Fingerprint(id, op string) string {
	return op + ":" + id
}

// Begin помечает операцию как выполняющуюся.
// Повторный вызов с тем же отпечатком до завершения отклоняется.
func (c *Collection[T]) Begin(fingerprint string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[fingerprint]; busy {
		return nil, apperrors.Validation(c.name, fmt.Errorf("%w: %s", apperrors.ErrInFlight, fingerprint))
	}
	c.inflight[fingerprint] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.inflight, fingerprint)
			c.mu.Unlock()
		})
	}, nil
}

// Watch подписывает fn на изменения; возвращает функцию отписки
func (c *Collection[T]) Watch(fn func(Change)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Collection[T]) deleteLocked(id string) {
	delete(c.items, id)
	delete(c.encoded, id)
}

func (c *Collection[T]) claimedElsewhere(id, source string) bool {
	for other, ids := range c.claims {
		if other == source {
			continue
		}
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

func (c *Collection[T]) listenersLocked() []func(Change) {
	out := make([]func(Change), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

// commitLocked повышает версию и возвращает действие, которое нужно выполнить без блокировки
func (c *Collection[T]) commitLocked(upserted, removed []string) func() {
	if len(upserted) == 0 && len(removed) == 0 {
		return nil
	}
	c.version++
	sort.Strings(upserted)
	sort.Strings(removed)
	change := Change{Store: c.name, Version: c.version, Upserted: upserted, Removed: removed}
	listeners := c.listenersLocked()
	onCommit := c.onCommit
	return func() {
		for _, fn := range listeners {
			fn(change)
		}
		if onCommit != nil {
			onCommit()
		}
	}
}

func (c *Collection[T]) sort(items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		if c.less != nil {
			if c.less(items[i], items[j]) {
				return true
			}
			if c.less(items[j], items[i]) {
				return false
			}
		}
		return items[i].EntityID() < items[j].EntityID()
	})
}
