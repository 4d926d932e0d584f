package store

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/subscription"
)

// MessageDraft данные нового сообщения
type MessageDraft struct {
	ReceiverID  string              `json:"receiver_id"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// MessageStore хранит сообщения и диалоги текущего пользователя
type MessageStore struct {
	deps          Deps
	messages      *Collection[models.Message]
	conversations *Collection[models.Conversation]
}

// NewMessageStore создает новый экземпляр MessageStore
func NewMessageStore(d Deps) *MessageStore {
	d = d.withDefaults()
	messages := NewCollection("messages", func(a, b models.Message) bool { return a.Timestamp.Before(b.Timestamp) }, d.Metrics)
	messages.OnCommit(d.persistHook("messages"))
	conversations := NewCollection("conversations", func(a, b models.Conversation) bool { return a.UpdatedAt.After(b.UpdatedAt) }, d.Metrics)
	conversations.OnCommit(d.persistHook("conversations"))
	return &MessageStore{deps: d, messages: messages, conversations: conversations}
}

// Messages возвращает коллекцию сообщений
func (s *MessageStore) Messages() *Collection[models.Message] { return s.messages }

// Conversations возвращает коллекцию диалогов
func (s *MessageStore) Conversations() *Collection[models.Conversation] { return s.conversations }

// Sections возвращает разделы снимка кэша
func (s *MessageStore) Sections() []cache.Section {
	return []cache.Section{
		section[models.Message]{key: cache.KeyMessages, field: "messages", coll: s.messages},
		section[models.Conversation]{key: cache.KeyConversations, field: "conversations", coll: s.conversations},
	}
}

// MessagesScope входящие и исходящие сообщения пользователя
func (s *MessageStore) MessagesScope(userID string) subscription.Scope {
	base := remote.Collection(MessagesCollection)
	return subscription.Scope{
		Name: "messages",
		Sink: s.messages,
		Queries: []remote.Query{
			base.Where("sender_id", remote.OpEqual, userID),
			base.Where("receiver_id", remote.OpEqual, userID),
		},
	}
}

// ConversationsScope диалоги, в которых участвует пользователь
func (s *MessageStore) ConversationsScope(userID string) subscription.Scope {
	return subscription.Scope{
		Name: "conversations",
		Sink: s.conversations,
		Queries: []remote.Query{
			remote.Collection(ConversationsCollection).
				Where("participants", remote.OpArrayContains, userID).
				OrderedBy("updated_at", true),
		},
		Complete: true,
	}
}

// Send отправляет сообщение и обновляет диалог пары участников
func (s *MessageStore) Send(ctx context.Context, draft MessageDraft) (models.Message, error) {
	const op = "messages.send"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Message{}, err
	}
	if draft.ReceiverID == "" {
		return models.Message{}, apperrors.Required(op, "receiver_id")
	}
	content := strings.TrimSpace(draft.Content)
	if content == "" && len(draft.Attachments) == 0 {
		return models.Message{}, apperrors.Invalid(op, "content", "message must have content or attachments")
	}

	msg := models.Message{
		ID:          s.deps.NewID(),
		SenderID:    acc.ID,
		ReceiverID:  draft.ReceiverID,
		Content:     content,
		Timestamp:   s.deps.Now(),
		IsRead:      acc.ID == draft.ReceiverID,
		Attachments: draft.Attachments,
	}

	err = s.deps.Source.Create(ctx, MessagesCollection, msg.ID, msg)
	s.deps.Metrics.Mutation("messages", "send", err)
	if err != nil {
		return models.Message{}, remoteFailure(s.messages, op, err)
	}
	s.messages.Put(msg)
	s.messages.ClearError()

	if err := s.upsertConversation(ctx, msg); err != nil {
		wrapped := apperrors.Remote("conversations.upsert", err)
		s.conversations.ReportError(wrapped)
		log.Error().Err(err).Str("conversation_id", msg.ConversationID()).Msg("не удалось обновить диалог")
	}

	if msg.SenderID != msg.ReceiverID {
		s.deps.Notifier.MessageSent(ctx, msg)
	}
	return msg, nil
}

// upsertConversation создает диалог пары или обновляет последнее сообщение и счетчик получателя
func (s *MessageStore) upsertConversation(ctx context.Context, msg models.Message) error {
	id := msg.ConversationID()
	for attempt := 0; attempt < 2; attempt++ {
		conv, err := s.fetchConversation(ctx, id)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			conv = models.Conversation{
				ID:           id,
				Participants: models.Participants(msg.SenderID, msg.ReceiverID),
				LastMessage:  &msg,
				UnreadCounts: map[string]int{msg.SenderID: 0, msg.ReceiverID: 0},
				UpdatedAt:    msg.Timestamp,
			}
			if msg.SenderID != msg.ReceiverID {
				conv.UnreadCounts[msg.ReceiverID] = 1
			}
			err = s.deps.Source.Create(ctx, ConversationsCollection, id, conv)
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				// диалог создан параллельно, повторяем через обновление
				continue
			}
			if err != nil {
				return err
			}
			s.conversations.Put(conv)
			return nil
		case err != nil:
			return err
		}

		counts := make(map[string]int, len(conv.UnreadCounts)+1)
		for userID, n := range conv.UnreadCounts {
			counts[userID] = n
		}
		if msg.SenderID != msg.ReceiverID {
			counts[msg.ReceiverID]++
		}
		patch := remote.Patch{"last_message": msg, "updated_at": msg.Timestamp, "unread_counts": counts}
		if err := s.deps.Source.Update(ctx, ConversationsCollection, id, patch); err != nil {
			return err
		}
		conv.LastMessage = &msg
		conv.UpdatedAt = msg.Timestamp
		conv.UnreadCounts = counts
		s.conversations.Put(conv)
		return nil
	}
	return apperrors.ErrAlreadyExists
}

// MarkAsRead отмечает сообщение прочитанным; доступно только получателю
func (s *MessageStore) MarkAsRead(ctx context.Context, id string) (models.Message, error) {
	const op = "messages.read"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Message{}, err
	}
	if id == "" {
		return models.Message{}, apperrors.Required(op, "id")
	}
	msg, ok := s.messages.Get(id)
	if !ok {
		msg, err = s.fetchMessage(ctx, id)
		if err != nil {
			return models.Message{}, apperrors.Remote(op, err)
		}
	}
	if msg.ReceiverID != acc.ID {
		return models.Message{}, apperrors.Validation(op, apperrors.ErrForbidden)
	}
	if msg.IsRead {
		return msg, nil
	}

	done, err := s.messages.Begin(Fingerprint(id, "mark-read"))
	if err != nil {
		return models.Message{}, err
	}
	defer done()

	err = s.deps.Source.Update(ctx, MessagesCollection, id, remote.Patch{"is_read": true})
	s.deps.Metrics.Mutation("messages", "read", err)
	if err != nil {
		return models.Message{}, remoteFailure(s.messages, op, err)
	}
	msg.IsRead = true
	s.messages.Put(msg)

	if err := s.adjustUnread(ctx, msg.ConversationID(), acc.ID, -1); err != nil {
		log.Warn().Err(err).Str("conversation_id", msg.ConversationID()).Msg("не удалось обновить счетчик непрочитанных")
	}
	return msg, nil
}

// MarkConversationRead отмечает прочитанными все входящие сообщения диалога
func (s *MessageStore) MarkConversationRead(ctx context.Context, conversationID string) (int, error) {
	const op = "conversations.read"
	acc, err := s.deps.actor(op)
	if err != nil {
		return 0, err
	}
	if conversationID == "" {
		return 0, apperrors.Required(op, "conversation_id")
	}
	conv, ok := s.conversations.Get(conversationID)
	if !ok {
		conv, err = s.fetchConversation(ctx, conversationID)
		if err != nil {
			return 0, apperrors.Remote(op, err)
		}
	}
	if !containsID(conv.Participants, acc.ID) {
		return 0, apperrors.Validation(op, apperrors.ErrForbidden)
	}

	done, err := s.conversations.Begin(Fingerprint(conversationID, "mark-read"))
	if err != nil {
		return 0, err
	}
	defer done()

	docs, err := s.deps.Source.Query(ctx, remote.Collection(MessagesCollection).
		Where("receiver_id", remote.OpEqual, acc.ID).
		Where("is_read", remote.OpEqual, false))
	if err != nil {
		return 0, remoteFailure(s.messages, op, err)
	}

	marked := 0
	for _, doc := range docs {
		var msg models.Message
		if err := doc.Decode(&msg); err != nil || msg.ConversationID() != conversationID {
			continue
		}
		if err := s.deps.Source.Update(ctx, MessagesCollection, msg.ID, remote.Patch{"is_read": true}); err != nil {
			return marked, remoteFailure(s.messages, op, err)
		}
		msg.IsRead = true
		s.messages.Put(msg)
		marked++
	}

	if conv.UnreadFor(acc.ID) != 0 {
		if err := s.adjustUnread(ctx, conversationID, acc.ID, 0); err != nil {
			return marked, remoteFailure(s.conversations, op, err)
		}
	}
	return marked, nil
}

// adjustUnread уменьшает счетчик зрителя на -delta или обнуляет его при delta == 0
func (s *MessageStore) adjustUnread(ctx context.Context, conversationID, viewerID string, delta int) error {
	conv, err := s.fetchConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(conv.UnreadCounts))
	for userID, n := range conv.UnreadCounts {
		counts[userID] = n
	}
	next := 0
	if delta != 0 {
		next = counts[viewerID] + delta
		if next < 0 {
			next = 0
		}
	}
	if counts[viewerID] == next {
		s.conversations.Put(conv)
		return nil
	}
	counts[viewerID] = next
	if err := s.deps.Source.Update(ctx, ConversationsCollection, conversationID, remote.Patch{"unread_counts": counts}); err != nil {
		return err
	}
	conv.UnreadCounts = counts
	s.conversations.Put(conv)
	return nil
}

// GetMessage возвращает сообщение из памяти
func (s *MessageStore) GetMessage(id string) (models.Message, bool) {
	return s.messages.Get(id)
}

// GetConversationMessages возвращает сообщения диалога в порядке отправки
func (s *MessageStore) GetConversationMessages(conversationID string) []models.Message {
	return s.messages.Select(func(m models.Message) bool { return m.ConversationID() == conversationID })
}

// GetUserConversations возвращает диалоги пользователя, последние обновленные первыми
func (s *MessageStore) GetUserConversations(userID string) []models.Conversation {
	return s.conversations.Select(func(c models.Conversation) bool { return containsID(c.Participants, userID) })
}

// GetUnreadCount суммирует непрочитанные сообщения пользователя по всем диалогам
func (s *MessageStore) GetUnreadCount(userID string) int {
	total := 0
	for _, conv := range s.GetUserConversations(userID) {
		total += conv.UnreadFor(userID)
	}
	return total
}

func (s *MessageStore) fetchMessage(ctx context.Context, id string) (models.Message, error) {
	doc, err := s.deps.Source.Get(ctx, MessagesCollection, id)
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := doc.Decode(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *MessageStore) fetchConversation(ctx context.Context, id string) (models.Conversation, error) {
	doc, err := s.deps.Source.Get(ctx, ConversationsCollection, id)
	if err != nil {
		return models.Conversation{}, err
	}
	var conv models.Conversation
	if err := doc.Decode(&conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
