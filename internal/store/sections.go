package store

import (
	"encoding/json"
	"fmt"
)

// section раздел кэша вида {field: [...]} для одной коллекции
type section[T Entity] struct {
	key   string
	field string
	coll  *Collection[T]
}

func (s section[T]) CacheKey() string { return s.key }

func (s section[T]) CacheValue() any {
	return map[string][]T{s.field: s.coll.Items()}
}

func (s section[T]) Hydrate(raw []byte) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("ошибка разбора раздела %s: %w", s.key, err)
	}
	var items []T
	if value, ok := payload[s.field]; ok {
		if err := json.Unmarshal(value, &items); err != nil {
			return fmt.Errorf("ошибка разбора поля %s.%s: %w", s.key, s.field, err)
		}
	}
	s.coll.Hydrate(items)
	return nil
}
