package models

import "time"

// ExchangeStatus статус обмена навыками
type ExchangeStatus string

const (
	StatusPending    ExchangeStatus = "pending"
	StatusAccepted   ExchangeStatus = "accepted"
	StatusDeclined   ExchangeStatus = "declined"
	StatusCanceled   ExchangeStatus = "canceled"
	StatusInProgress ExchangeStatus = "in_progress"
	StatusCompleted  ExchangeStatus = "completed"
)

// Terminal сообщает, что из статуса нет переходов
func (s ExchangeStatus) Terminal() bool {
	return s == StatusDeclined || s == StatusCanceled || s == StatusCompleted
}

// Valid проверяет, что статус известен
func (s ExchangeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCanceled, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Exchange представляет предложение обмена навыками между двумя пользователями
type Exchange struct {
	ID               string         `json:"id"`
	InitiatorID      string         `json:"initiator_id"`
	RecipientID      string         `json:"recipient_id"`
	InitiatorSkillID string         `json:"initiator_skill_id"`
	RecipientSkillID string         `json:"recipient_skill_id"`
	Status           ExchangeStatus `json:"status"`
	ProposedDate     time.Time      `json:"proposed_date"`
	ProposedTime     string         `json:"proposed_time,omitempty"`
	Duration         int            `json:"duration"` // в минутах
	Location         string         `json:"location"`
	Notes            string         `json:"notes,omitempty"`
	Attachments      []Attachment   `json:"attachments,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

func (e Exchange) EntityID() string { return e.ID }

// Involves проверяет, участвует ли пользователь в обмене
func (e Exchange) Involves(userID string) bool {
	return e.InitiatorID == userID || e.RecipientID == userID
}

// Counterpart возвращает второго участника относительно userID
func (e Exchange) Counterpart(userID string) string {
	if e.InitiatorID == userID {
		return e.RecipientID
	}
	return e.InitiatorID
}

// AttachmentType тип вложения
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
	AttachmentVideo    AttachmentType = "video"
)

// Attachment представляет загруженный файл
type Attachment struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Type       AttachmentType `json:"type"`
	Name       string         `json:"name"`
	Size       int64          `json:"size"`
	UploadedAt time.Time      `json:"uploaded_at"`
}
