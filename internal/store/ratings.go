package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// RatingDraft оценка после завершенного обмена
type RatingDraft struct {
	ExchangeID   string `json:"exchange_id"`
	TargetUserID string `json:"target_user_id,omitempty"`
	Score        int    `json:"score"`
	Comment      string `json:"comment,omitempty"`
}

// RatingStore оценки пользователей и обменов
type RatingStore struct {
	deps      Deps
	accounts  *AccountStore
	exchanges *ExchangeStore
	users     *Collection[models.Rating]
	byEx      *Collection[models.Rating]
}

// NewRatingStore создает новый экземпляр RatingStore
func NewRatingStore(d Deps, accounts *AccountStore, exchanges *ExchangeStore) *RatingStore {
	d = d.withDefaults()
	newest := func(a, b models.Rating) bool { return a.CreatedAt.After(b.CreatedAt) }
	return &RatingStore{
		deps:      d,
		accounts:  accounts,
		exchanges: exchanges,
		users:     NewCollection("user_ratings", newest, d.Metrics),
		byEx:      NewCollection("exchange_ratings", newest, d.Metrics),
	}
}

// UserRatingsCollection возвращает коллекцию оценок пользователей
func (s *RatingStore) UserRatingsCollection() *Collection[models.Rating] { return s.users }

// ExchangeRatingsCollection возвращает коллекцию оценок обменов
func (s *RatingStore) ExchangeRatingsCollection() *Collection[models.Rating] { return s.byEx }

// RateUser оценивает второго участника завершенного обмена и синхронно
// пересчитывает его рейтинг доверия
func (s *RatingStore) RateUser(ctx context.Context, draft RatingDraft) (models.Rating, error) {
	const op = "ratings.user"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Rating{}, err
	}
	if draft.TargetUserID == "" {
		return models.Rating{}, apperrors.Required(op, "target_user_id")
	}
	if draft.TargetUserID == acc.ID {
		return models.Rating{}, apperrors.Invalid(op, "target_user_id", "cannot rate yourself")
	}
	ex, err := s.validate(ctx, op, acc.ID, draft)
	if err != nil {
		return models.Rating{}, err
	}
	if !ex.Involves(draft.TargetUserID) {
		return models.Rating{}, apperrors.Invalid(op, "target_user_id", "user is not a participant of the exchange")
	}

	rating := models.Rating{
		ID:           models.RatingID(draft.ExchangeID, acc.ID),
		Kind:         models.RatingOfUser,
		ExchangeID:   draft.ExchangeID,
		ReviewerID:   acc.ID,
		TargetUserID: draft.TargetUserID,
		Score:        draft.Score,
		Comment:      strings.TrimSpace(draft.Comment),
		CreatedAt:    s.deps.Now(),
	}
	if err := s.write(ctx, op, UserRatingsCollection, s.users, rating); err != nil {
		return models.Rating{}, err
	}

	_, recomputeErr := s.RecomputeTrust(ctx, draft.TargetUserID)
	s.deps.Notifier.RatingSubmitted(ctx, rating)
	if recomputeErr != nil {
		return rating, recomputeErr
	}
	return rating, nil
}

// RateExchange оценивает сам обмен; рейтинг доверия не затрагивается
func (s *RatingStore) RateExchange(ctx context.Context, draft RatingDraft) (models.Rating, error) {
	const op = "ratings.exchange"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Rating{}, err
	}
	if _, err := s.validate(ctx, op, acc.ID, draft); err != nil {
		return models.Rating{}, err
	}

	rating := models.Rating{
		ID:         models.RatingID(draft.ExchangeID, acc.ID),
		Kind:       models.RatingOfExchange,
		ExchangeID: draft.ExchangeID,
		ReviewerID: acc.ID,
		Score:      draft.Score,
		Comment:    strings.TrimSpace(draft.Comment),
		CreatedAt:  s.deps.Now(),
	}
	if err := s.write(ctx, op, ExchangeRatingsCollection, s.byEx, rating); err != nil {
		return models.Rating{}, err
	}
	return rating, nil
}

func (s *RatingStore) validate(ctx context.Context, op, reviewerID string, draft RatingDraft) (models.Exchange, error) {
	if draft.ExchangeID == "" {
		return models.Exchange{}, apperrors.Required(op, "exchange_id")
	}
	if draft.Score < 1 || draft.Score > 5 {
		return models.Exchange{}, apperrors.Invalid(op, "score", "must be between 1 and 5")
	}
	ex, err := s.exchanges.load(ctx, op, draft.ExchangeID)
	if err != nil {
		return models.Exchange{}, err
	}
	if !ex.Involves(reviewerID) {
		return models.Exchange{}, apperrors.Validation(op, apperrors.ErrForbidden)
	}
	if ex.Status != models.StatusCompleted {
		return models.Exchange{}, apperrors.Invalid(op, "exchange_id", "only completed exchanges can be rated")
	}
	return ex, nil
}

func (s *RatingStore) write(ctx context.Context, op, collection string, coll *Collection[models.Rating], rating models.Rating) error {
	done, err := coll.Begin(Fingerprint(rating.ID, op))
	if err != nil {
		return err
	}
	defer done()

	err = s.deps.Source.Create(ctx, collection, rating.ID, rating)
	s.deps.Metrics.Mutation(collection, "create", err)
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		return apperrors.Validation(op, fmt.Errorf("%w: %s", apperrors.ErrAlreadyRated, rating.ID))
	}
	if err != nil {
		return remoteFailure(coll, op, err)
	}
	coll.Put(rating)
	return nil
}

// UserRatings читает оценки пользователя и пересчитывает его рейтинг доверия
func (s *RatingStore) UserRatings(ctx context.Context, userID string) ([]models.Rating, error) {
	ratings, err := s.queryUserRatings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.applyTrust(ctx, userID, ratings); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("не удалось обновить рейтинг доверия")
	}
	return s.users.Select(func(r models.Rating) bool { return r.TargetUserID == userID }), nil
}

// ExchangeRatings читает оценки обмена
func (s *RatingStore) ExchangeRatings(ctx context.Context, exchangeID string) ([]models.Rating, error) {
	if exchangeID == "" {
		return nil, apperrors.Required("ratings.exchange_list", "exchange_id")
	}
	docs, err := s.deps.Source.Query(ctx, remote.Collection(ExchangeRatingsCollection).Where("exchange_id", remote.OpEqual, exchangeID))
	if err != nil {
		return nil, apperrors.Remote("ratings.exchange_list", err)
	}
	s.byEx.ApplyDocuments("exchange_ratings/"+exchangeID, docs, false)
	return s.byEx.Select(func(r models.Rating) bool { return r.ExchangeID == exchangeID }), nil
}

// RecomputeTrust пересчитывает среднее оценок пользователя и записывает его,
// только если значение изменилось
func (s *RatingStore) RecomputeTrust(ctx context.Context, userID string) (float64, error) {
	ratings, err := s.queryUserRatings(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.applyTrust(ctx, userID, ratings)
}

// HasRated проверяет, оставил ли пользователь оценку данного вида по обмену
func (s *RatingStore) HasRated(ctx context.Context, exchangeID, reviewerID string, kind models.RatingKind) (bool, error) {
	collection := UserRatingsCollection
	if kind == models.RatingOfExchange {
		collection = ExchangeRatingsCollection
	}
	_, err := s.deps.Source.Get(ctx, collection, models.RatingID(exchangeID, reviewerID))
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Remote("ratings.has_rated", err)
	}
	return true, nil
}

func (s *RatingStore) queryUserRatings(ctx context.Context, userID string) ([]models.Rating, error) {
	if userID == "" {
		return nil, apperrors.Required("ratings.list", "user_id")
	}
	docs, err := s.deps.Source.Query(ctx, remote.Collection(UserRatingsCollection).Where("target_user_id", remote.OpEqual, userID))
	if err != nil {
		return nil, apperrors.Remote("ratings.list", err)
	}
	s.users.ApplyDocuments("user_ratings/"+userID, docs, false)

	ratings := make([]models.Rating, 0, len(docs))
	for _, doc := range docs {
		var r models.Rating
		if err := doc.Decode(&r); err != nil {
			continue
		}
		ratings = append(ratings, r)
	}
	return ratings, nil
}

func (s *RatingStore) applyTrust(ctx context.Context, userID string, ratings []models.Rating) (float64, error) {
	score := models.TrustScore(ratings)
	acc, err := s.accounts.Fetch(ctx, userID)
	if err != nil {
		return score, err
	}
	if acc.TrustScore == score {
		return score, nil
	}
	if _, err := s.accounts.SetTrustScore(ctx, userID, score); err != nil {
		return score, err
	}
	if current, ok := s.currentUser(); ok && current == userID {
		s.deps.syncProfile(ctx, userID)
	}
	return score, nil
}

func (s *RatingStore) currentUser() (string, bool) {
	if s.deps.Session == nil {
		return "", false
	}
	acc, ok := s.deps.Session.CurrentAccount()
	return acc.ID, ok
}
