package chat

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// ChatService API диалогов и сообщений
type ChatService struct {
	messages *store.MessageStore
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(messages *store.MessageStore) *ChatService {
	return &ChatService{messages: messages}
}

type conversationView struct {
	models.Conversation
	Unread int `json:"unread"`
}

// GetChats возвращает диалоги пользователя с количеством непрочитанных
func (s *ChatService) GetChats(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	conversations := s.messages.GetUserConversations(userID)

	chats := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		chats = append(chats, conversationView{Conversation: conv, Unread: conv.UnreadFor(userID)})
	}
	return c.JSON(fiber.Map{
		"chats":  chats,
		"count":  len(chats),
		"unread": s.messages.GetUnreadCount(userID),
	})
}

// GetUnreadCount возвращает общее количество непрочитанных сообщений
func (s *ChatService) GetUnreadCount(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"count": s.messages.GetUnreadCount(middleware.UserID(c))})
}

// GetChatMessages возвращает сообщения диалога в порядке отправки
func (s *ChatService) GetChatMessages(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	chatID := c.Params("id")

	if conv, ok := s.messages.Conversations().Get(chatID); ok && !isParticipant(conv, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому чату"})
	}

	messages := make([]models.Message, 0)
	for _, msg := range s.messages.GetConversationMessages(chatID) {
		if msg.SenderID == userID || msg.ReceiverID == userID {
			messages = append(messages, msg)
		}
	}
	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessage отправляет сообщение
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	var draft store.MessageDraft
	if err := c.Bind().Body(&draft); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	msg, err := s.messages.Send(ctx, draft)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": msg,
		"chat_id": msg.ConversationID(),
	})
}

// MarkChatRead отмечает прочитанными все входящие сообщения диалога
func (s *ChatService) MarkChatRead(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	marked, err := s.messages.MarkConversationRead(ctx, c.Params("id"))
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(fiber.Map{"marked": marked})
}

// MarkMessageRead отмечает одно сообщение прочитанным
func (s *ChatService) MarkMessageRead(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	msg, err := s.messages.MarkAsRead(ctx, c.Params("id"))
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(msg)
}

func isParticipant(conv models.Conversation, userID string) bool {
	for _, id := range conv.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
