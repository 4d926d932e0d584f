package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Manager центральный менеджер WebSocket соединений UI-клиентов агента
type Manager struct {
	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	userClients  map[string]map[uuid.UUID]bool // userID -> map[clientID]bool
	userMutex    sync.RWMutex
	handler      Handler
	ctx          context.Context
	cancel       context.CancelFunc
}

// Handler выполняет команды, присланные клиентом
type Handler interface {
	MarkMessageRead(ctx context.Context, userID, messageID string) error
}

// Authenticator возвращает userID по токену подключения
type Authenticator func(token string) (string, error)

// EventType определяет тип события WebSocket
type EventType string

const (
	EventConnected    EventType = "connected"
	EventStoreChanged EventType = "store_changed"
	EventSession      EventType = "session"
	EventMessageRead  EventType = "message_read"
	EventUnreadCount  EventType = "unread_count"
	EventError        EventType = "error"
)

// Event структура сообщения для WebSocket
type Event struct {
	Type      EventType       `json:"type"`
	ChatID    string          `json:"chat_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// UI работает с локального адреса агента
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewManager создает новый экземпляр Manager
func NewManager(handler Handler) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[string]map[uuid.UUID]bool),
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Handler возвращает HTTP обработчик подключения; токен передается в ?token=
func (m *Manager) Handler(auth Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ошибка upgrade WebSocket соединения")
			return
		}
		NewClient(userID, conn, m).Start()
	})
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	if _, exists := m.userClients[client.UserID]; !exists {
		m.userClients[client.UserID] = make(map[uuid.UUID]bool)
	}
	m.userClients[client.UserID][client.ID] = true
	m.userMutex.Unlock()

	log.Info().Str("client_id", client.ID.String()).Str("user_id", client.UserID).Msg("WebSocket клиент подключен")
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	client, exists := m.clients[clientID]
	delete(m.clients, clientID)
	m.clientsMutex.Unlock()

	if !exists {
		return
	}

	m.userMutex.Lock()
	if clients, ok := m.userClients[client.UserID]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(m.userClients, client.UserID)
		}
	}
	m.userMutex.Unlock()

	log.Info().Str("client_id", clientID.String()).Str("user_id", client.UserID).Msg("WebSocket клиент отключен")
}

// Connected возвращает число соединений пользователя
func (m *Manager) Connected(userID string) int {
	m.userMutex.RLock()
	defer m.userMutex.RUnlock()
	return len(m.userClients[userID])
}

// SendToUser отправляет событие всем соединениям пользователя
func (m *Manager) SendToUser(userID string, event Event) {
	if userID == "" {
		return
	}

	m.userMutex.RLock()
	clientIDs := make([]uuid.UUID, 0, len(m.userClients[userID]))
	for id := range m.userClients[userID] {
		clientIDs = append(clientIDs, id)
	}
	m.userMutex.RUnlock()

	if len(clientIDs) == 0 {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("ошибка сериализации события")
		return
	}

	for _, clientID := range clientIDs {
		m.clientsMutex.RLock()
		client, exists := m.clients[clientID]
		m.clientsMutex.RUnlock()
		if !exists {
			continue
		}
		m.enqueue(client, eventJSON)
	}
}

// enqueue не блокирует отправителя: медленный клиент отключается
func (m *Manager) enqueue(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("client_id", c.ID.String()).Msg("очередь клиента переполнена, закрываем соединение")
		m.RemoveClient(c.ID)
		c.conn.Close()
	}
}

// SendPayload сериализует payload и отправляет событие пользователю
func (m *Manager) SendPayload(userID string, eventType EventType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("ошибка сериализации payload")
		return
	}
	m.SendToUser(userID, Event{Type: eventType, UserID: userID, Payload: raw})
}

// BroadcastUnreadCounts отправляет количество непрочитанных сообщений пользователю
func (m *Manager) BroadcastUnreadCounts(userID string, unreadCounts int) {
	m.SendPayload(userID, EventUnreadCount, map[string]int{"count": unreadCounts})
}

// DisconnectUser закрывает все соединения пользователя
func (m *Manager) DisconnectUser(userID string) {
	m.userMutex.RLock()
	clientIDs := make([]uuid.UUID, 0, len(m.userClients[userID]))
	for id := range m.userClients[userID] {
		clientIDs = append(clientIDs, id)
	}
	m.userMutex.RUnlock()

	for _, id := range clientIDs {
		m.clientsMutex.RLock()
		client, ok := m.clients[id]
		m.clientsMutex.RUnlock()
		if ok {
			m.RemoveClient(id)
			client.conn.Close()
		}
	}
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.cancel()

	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.conn.Close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	m.userClients = make(map[string]map[uuid.UUID]bool)
	m.userMutex.Unlock()
}
