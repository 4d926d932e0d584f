// Package subscription открывает живые запросы к удаленному источнику и направляет
// их снимки в хранилища сущностей.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/metrics"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// Sink принимает снимки подписок; реализуется store.Collection
type Sink interface {
	Name() string
	ApplyDocuments(source string, docs []remote.Document, complete bool)
	SetLoading(loading bool)
	ReportError(err error)
}

// Scope область данных для одного хранилища.
// Каждый запрос из Queries открывается отдельной подпиской (дизъюнкт),
// их результаты объединяются в хранилище по id.
type Scope struct {
	Name     string
	Sink     Sink
	Queries  []remote.Query
	Complete bool
}

// Gate разрешает подписки только аутентифицированному пользователю
type Gate interface {
	Authenticated() bool
}

// Handle отменяет подписку; повторный Close ничего не делает
type Handle struct {
	id    string
	close func()
}

// ID возвращает идентификатор подписки
func (h Handle) ID() string { return h.id }

// Close отменяет все запросы подписки
func (h Handle) Close() {
	if h.close != nil {
		h.close()
	}
}

type entry struct {
	id    string
	scope Scope

	mu     sync.RWMutex
	closed bool
	stops  []func()
	once   sync.Once
}

// Manager управляет живыми подписками текущей сессии
type Manager struct {
	source  remote.Source
	gate    Gate
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]*entry
	seq    uint64
	// gen увеличивается каждым CloseAll
	gen uint64
}

// NewManager создает новый экземпляр Manager
func NewManager(source remote.Source, gate Gate, m *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		source:  source,
		gate:    gate,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*entry),
	}
}

// Subscribe открывает все дизъюнкты области.
// Ошибка одного дизъюнкта останавливает только его, остальные продолжают работу.
func (m *Manager) Subscribe(scope Scope) (Handle, error) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	if m.gate == nil || !m.gate.Authenticated() {
		return Handle{}, apperrors.Validation("subscribe", apperrors.ErrNotAuthenticated)
	}
	if err := validate(scope); err != nil {
		return Handle{}, err
	}

	m.mu.Lock()
	// CloseAll между проверкой входа и регистрацией означает смену пользователя
	if m.gen != gen || !m.gate.Authenticated() {
		m.mu.Unlock()
		return Handle{}, apperrors.Validation("subscribe", apperrors.ErrNotAuthenticated)
	}
	m.seq++
	e := &entry{id: fmt.Sprintf("%s#%d", scope.Name, m.seq), scope: scope}
	m.active[e.id] = e
	m.mu.Unlock()

	scope.Sink.SetLoading(true)
	for _, q := range scope.Queries {
		sourceKey := scope.Name + "/" + q.Key()
		query := q
		onSnapshot := func(docs []remote.Document) {
			e.mu.RLock()
			defer e.mu.RUnlock()
			if e.closed {
				return
			}
			scope.Sink.ApplyDocuments(sourceKey, docs, scope.Complete)
		}
		onError := func(err error) {
			e.mu.RLock()
			defer e.mu.RUnlock()
			if e.closed {
				return
			}
			m.metrics.SubscriptionError(scope.Name)
			log.Warn().Err(err).Str("scope", scope.Name).Str("query", query.Key()).Msg("живой запрос остановлен")
			scope.Sink.ReportError(apperrors.Subscription(scope.Name, err))
		}

		stop := m.source.Subscribe(m.ctx, query, onSnapshot, onError)
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			stop()
			break
		}
		e.stops = append(e.stops, stop)
		e.mu.Unlock()
		m.metrics.SubscriptionOpened()
	}

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return Handle{}, apperrors.Validation("subscribe", apperrors.ErrNotAuthenticated)
	}
	return Handle{id: e.id, close: func() { m.release(e) }}, nil
}

// Close отменяет подписку по идентификатору
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	e, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.release(e)
	return true
}

// CloseAll отменяет все подписки. После возврата ни один снимок старых подписок
// не будет применен к хранилищам.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.gen++
	entries := make([]*entry, 0, len(m.active))
	for _, e := range m.active {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		m.release(e)
	}
}

// Replace закрывает все текущие подписки и открывает новые области
func (m *Manager) Replace(scopes ...Scope) ([]Handle, error) {
	m.CloseAll()

	handles := make([]Handle, 0, len(scopes))
	for _, scope := range scopes {
		h, err := m.Subscribe(scope)
		if err != nil {
			for _, opened := range handles {
				opened.Close()
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Active возвращает идентификаторы открытых подписок
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown закрывает все подписки и запрещает новые
func (m *Manager) Shutdown() {
	m.CloseAll()
	m.cancel()
}

func (m *Manager) release(e *entry) {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		stops := e.stops
		e.stops = nil
		e.mu.Unlock()

		for _, stop := range stops {
			stop()
			m.metrics.SubscriptionClosed()
		}

		m.mu.Lock()
		delete(m.active, e.id)
		m.mu.Unlock()
	})
}

func validate(scope Scope) error {
	if scope.Sink == nil {
		return apperrors.Validation("subscribe", errors.New("scope has no sink"))
	}
	if len(scope.Queries) == 0 {
		return apperrors.Validation("subscribe", errors.New("scope has no queries"))
	}
	if scope.Complete && len(scope.Queries) > 1 {
		return apperrors.Validation("subscribe", errors.New("complete scope must have a single query"))
	}
	if scope.Name == "" {
		return apperrors.Validation("subscribe", errors.New("scope has no name"))
	}
	return nil
}
