// Package fanout пишет уведомления после подтвержденных мутаций
package fanout

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/metrics"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

const fallbackName = "Someone"

// Recorder записывает уведомление
type Recorder interface {
	Record(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Names возвращает отображаемое имя пользователя
type Names interface {
	DisplayName(ctx context.Context, id string) string
}

// Dispatcher реализует store.Notifier.
// Ошибки записи уведомлений логируются и никогда не возвращаются вызывающему.
type Dispatcher struct {
	recorder Recorder
	names    Names
	metrics  *metrics.Metrics
}

var _ store.Notifier = (*Dispatcher)(nil)

// NewDispatcher создает новый экземпляр Dispatcher
func NewDispatcher(recorder Recorder, names Names, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{recorder: recorder, names: names, metrics: m}
}

// ExchangeCreated уведомляет получателя о новом предложении
func (d *Dispatcher) ExchangeCreated(ctx context.Context, ex models.Exchange, actorID string) {
	d.send(ctx, models.Notification{
		UserID:    ex.RecipientID,
		Type:      models.NotificationExchangeRequest,
		Title:     "New Exchange Request",
		Message:   fmt.Sprintf("%s proposed an exchange", d.name(ctx, actorID)),
		RelatedID: ex.ID,
	})
}

// ExchangeStatusChanged уведомляет о смене статуса.
// accepted и declined получает инициатор, canceled и completed получает участник,
// не выполнявший переход; если actor не участник, уведомляются оба.
func (d *Dispatcher) ExchangeStatusChanged(ctx context.Context, ex models.Exchange, actorID string) {
	var (
		targets []string
		message string
		name    = d.name(ctx, actorID)
	)
	switch ex.Status {
	case models.StatusAccepted, models.StatusDeclined:
		targets = []string{ex.InitiatorID}
		message = fmt.Sprintf("%s %s your exchange request", name, ex.Status)
	case models.StatusCanceled, models.StatusCompleted:
		if ex.Involves(actorID) {
			targets = []string{ex.Counterpart(actorID)}
		} else {
			targets = []string{ex.InitiatorID, ex.RecipientID}
		}
		message = fmt.Sprintf("%s %s the exchange", name, ex.Status)
	default:
		return
	}

	for _, target := range targets {
		d.send(ctx, models.Notification{
			UserID:    target,
			Type:      models.NotificationType("exchange_" + string(ex.Status)),
			Title:     "Exchange " + capitalize(string(ex.Status)),
			Message:   message,
			RelatedID: ex.ID,
		})
	}
}

// MessageSent уведомляет получателя сообщения
func (d *Dispatcher) MessageSent(ctx context.Context, msg models.Message) {
	if msg.SenderID == msg.ReceiverID {
		return
	}
	d.send(ctx, models.Notification{
		UserID:    msg.ReceiverID,
		Type:      models.NotificationNewMessage,
		Title:     "New Message",
		Message:   fmt.Sprintf("New message from %s", d.name(ctx, msg.SenderID)),
		RelatedID: msg.ConversationID(),
	})
}

// RatingSubmitted уведомляет оцененного пользователя
func (d *Dispatcher) RatingSubmitted(ctx context.Context, rating models.Rating) {
	if rating.Kind != models.RatingOfUser || rating.TargetUserID == "" {
		return
	}
	d.send(ctx, models.Notification{
		UserID:    rating.TargetUserID,
		Type:      models.NotificationNewRating,
		Title:     "New Rating Received",
		Message:   fmt.Sprintf("%s rated you for an exchange", d.name(ctx, rating.ReviewerID)),
		RelatedID: rating.ExchangeID,
	})
}

// SkillAdded пишет системное уведомление самому пользователю
func (d *Dispatcher) SkillAdded(ctx context.Context, skill models.Skill) {
	kind := "needed"
	if skill.IsOffered {
		kind = "offered"
	}
	d.send(ctx, models.Notification{
		UserID:  skill.UserID,
		Type:    models.NotificationSystem,
		Title:   "New Skill Added",
		Message: fmt.Sprintf("%s added a new %s skill: %s", d.name(ctx, skill.UserID), kind, skill.Name),
	})
}

func (d *Dispatcher) send(ctx context.Context, n models.Notification) {
	if n.UserID == "" {
		return
	}
	_, err := d.recorder.Record(ctx, n)
	d.metrics.Fanout(string(n.Type), err)
	if err != nil {
		log.Error().
			Err(apperrors.Fanout(string(n.Type), err)).
			Str("user_id", n.UserID).
			Str("related_id", n.RelatedID).
			Msg("не удалось записать уведомление")
	}
}

func (d *Dispatcher) name(ctx context.Context, id string) string {
	if d.names == nil || id == "" {
		return fallbackName
	}
	if name := d.names.DisplayName(ctx, id); name != "" {
		return name
	}
	return fallbackName
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
