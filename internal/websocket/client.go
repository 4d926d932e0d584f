package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Максимальное время ожидания для pong от клиента
	pongWait = 60 * time.Second

	// Отправлять ping-сообщения клиенту с этим интервалом
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second

	// Максимальный размер сообщения от клиента
	maxMessageSize = 64 * 1024

	// Размер буфера для отправляемых сообщений
	writeBufferSize = 256

	commandTimeout = 5 * time.Second
)

// Client отдельное WebSocket соединение
type Client struct {
	ID        uuid.UUID
	UserID    string
	conn      *websocket.Conn
	send      chan []byte
	manager   *Manager
	closeChan chan struct{}
}

// NewClient создает новый экземпляр Client
func NewClient(userID string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:        uuid.New(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, writeBufferSize),
		manager:   manager,
		closeChan: make(chan struct{}),
	}
}

// Start регистрирует клиента, запускает горутины чтения и записи и отправляет EventConnected
func (c *Client) Start() {
	c.manager.AddClient(c)

	go c.readPump()
	go c.writePump()

	payload, _ := json.Marshal(Event{Type: EventConnected, UserID: c.UserID, Timestamp: time.Now()})
	c.manager.enqueue(c, payload)
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.manager.RemoveClient(c.ID)
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.ID.String()).Msg("неожиданное закрытие соединения")
			}
			break
		}
		c.handleIncomingMessage(message)
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("client_id", c.ID.String()).Msg("ошибка отправки сообщения")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			return
		case <-c.manager.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// handleIncomingMessage обрабатывает команды клиента
func (c *Client) handleIncomingMessage(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		log.Warn().Err(err).Str("client_id", c.ID.String()).Msg("ошибка разбора события")
		return
	}

	// userID берется только из соединения
	if event.UserID != "" && event.UserID != c.UserID {
		log.Warn().Str("client_id", c.ID.String()).Str("user_id", event.UserID).Msg("userID в событии не совпадает с соединением")
		return
	}
	event.UserID = c.UserID

	switch event.Type {
	case EventMessageRead:
		if event.MessageID == "" || c.manager.handler == nil {
			return
		}
		ctx, cancel := context.WithTimeout(c.manager.ctx, commandTimeout)
		defer cancel()
		if err := c.manager.handler.MarkMessageRead(ctx, c.UserID, event.MessageID); err != nil {
			c.manager.SendPayload(c.UserID, EventError, map[string]string{
				"message_id": event.MessageID,
				"error":      err.Error(),
			})
		}
	default:
		log.Debug().Str("type", string(event.Type)).Msg("необработанный тип события")
	}
}
