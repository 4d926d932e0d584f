package models

import (
	"sort"
	"strings"
	"time"
)

// Message представляет сообщение между двумя пользователями
type Message struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"sender_id"`
	ReceiverID  string       `json:"receiver_id"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	IsRead      bool         `json:"is_read"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

func (m Message) EntityID() string { return m.ID }

// ConversationID возвращает идентификатор диалога для сообщения
func (m Message) ConversationID() string {
	return ConversationID(m.SenderID, m.ReceiverID)
}

// Conversation представляет диалог двух пользователей
type Conversation struct {
	ID           string         `json:"id"`
	Participants []string       `json:"participants"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCounts map[string]int `json:"unread_counts,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c Conversation) EntityID() string { return c.ID }

// UnreadFor возвращает количество непрочитанных сообщений для пользователя
func (c Conversation) UnreadFor(userID string) int {
	return c.UnreadCounts[userID]
}

// ConversationID строит идентификатор диалога из отсортированной пары участников
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// Participants возвращает отсортированную пару участников
func Participants(a, b string) []string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids
}
