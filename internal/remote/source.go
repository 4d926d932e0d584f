// Package remote описывает удаленную документную базу данных: CRUD по коллекциям,
// запросы с фильтрами и живые подписки, повторно доставляющие полный результат.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
)

var (
	ErrNotFound         = apperrors.ErrNotFound
	ErrAlreadyExists    = apperrors.ErrAlreadyExists
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// Document представляет документ коллекции в нормализованном JSON-виде
type Document struct {
	ID     string
	Fields map[string]any
}

// Decode раскладывает поля документа в структуру
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("ошибка кодирования документа %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("ошибка декодирования документа %s: %w", d.ID, err)
	}
	return nil
}

// Backend выполняет операции над документами без живых подписок
type Backend interface {
	// Create создает документ и возвращает ErrAlreadyExists, если id занят
	Create(ctx context.Context, collection, id string, doc any) error
	// Set создает или полностью перезаписывает документ
	Set(ctx context.Context, collection, id string, doc any) error
	// Update применяет частичное изменение верхнеуровневых полей
	Update(ctx context.Context, collection, id string, patch Patch) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Source добавляет к Backend живые подписки на запросы
type Source interface {
	Backend
	// Subscribe доставляет полный результат запроса сразу и после каждого изменения
	// коллекции. Возвращаемая функция отменяет подписку и безопасна для повторного вызова.
	Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(error)) func()
}

// ToFields нормализует значение в карту полей через JSON
func ToFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ошибка кодирования документа: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("документ должен быть объектом: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// normalize приводит значение к виду, в котором оно хранится в документе
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
