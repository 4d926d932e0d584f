package models

import "time"

// RatingKind различает оценку пользователя и оценку обмена
type RatingKind string

const (
	RatingOfUser     RatingKind = "user"
	RatingOfExchange RatingKind = "exchange"
)

// Rating представляет оценку, оставленную после завершенного обмена
type Rating struct {
	ID           string     `json:"id"`
	Kind         RatingKind `json:"kind"`
	ExchangeID   string     `json:"exchange_id"`
	ReviewerID   string     `json:"reviewer_id"`
	TargetUserID string     `json:"target_user_id,omitempty"`
	Score        int        `json:"score"`
	Comment      string     `json:"comment,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (r Rating) EntityID() string { return r.ID }

// RatingID строит ключ оценки, ограничивающий одну оценку на участника
func RatingID(exchangeID, reviewerID string) string {
	return exchangeID + "_" + reviewerID
}

// TrustScore считает среднее арифметическое оценок, 0 при их отсутствии
func TrustScore(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Score
	}
	return float64(sum) / float64(len(ratings))
}
