package remote

import "fmt"

// Patch описывает частичное изменение документа по верхнеуровневым полям
type Patch map[string]any

type increment struct{ by float64 }

type deleteField struct{}

// Increment увеличивает числовое поле на n
func Increment(n int) any { return increment{by: float64(n)} }

// DeleteField удаляет поле из документа
func DeleteField() any { return deleteField{} }

// ApplyPatch возвращает копию полей с примененными изменениями
func ApplyPatch(fields map[string]any, patch Patch) (map[string]any, error) {
	out := make(map[string]any, len(fields)+len(patch))
	for k, v := range fields {
		out[k] = v
	}
	for key, value := range patch {
		switch v := value.(type) {
		case deleteField:
			delete(out, key)
		case increment:
			current := 0.0
			if existing, ok := out[key]; ok && existing != nil {
				n, ok := existing.(float64)
				if !ok {
					return nil, fmt.Errorf("поле %s не является числом", key)
				}
				current = n
			}
			out[key] = current + v.by
		default:
			normalized, err := normalize(value)
			if err != nil {
				return nil, fmt.Errorf("ошибка кодирования поля %s: %w", key, err)
			}
			out[key] = normalized
		}
	}
	return out, nil
}
