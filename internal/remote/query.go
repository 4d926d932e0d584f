package remote

import (
	"fmt"
	"sort"
	"strings"
)

// Op оператор сравнения в фильтре
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
)

// Filter условие на одно поле документа
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order задает сортировку по полю
type Order struct {
	Field string
	Desc  bool
}

// Query запрос к одной коллекции
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
}

// Collection начинает запрос ко всей коллекции
func Collection(name string) Query {
	return Query{Collection: name}
}

// Where добавляет фильтр и возвращает новый запрос
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderedBy добавляет сортировку и возвращает новый запрос
func (q Query) OrderedBy(field string, desc bool) Query {
	orders := make([]Order, len(q.OrderBy), len(q.OrderBy)+1)
	copy(orders, q.OrderBy)
	q.OrderBy = append(orders, Order{Field: field, Desc: desc})
	return q
}

// Key возвращает стабильное текстовое представление запроса
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|%s%s%v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.OrderBy {
		if o.Desc {
			fmt.Fprintf(&b, "|order:-%s", o.Field)
		} else {
			fmt.Fprintf(&b, "|order:%s", o.Field)
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|limit:%d", q.Limit)
	}
	return b.String()
}

// Validate проверяет, что запрос можно выполнить
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is empty", ErrUnsupportedQuery)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: empty filter field", ErrUnsupportedQuery)
		}
		switch f.Op {
		case OpEqual, OpArrayContains, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		default:
			return fmt.Errorf("%w: operator %q", ErrUnsupportedQuery, f.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrUnsupportedQuery)
	}
	return nil
}

// Match проверяет документ на соответствие всем фильтрам
func Match(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		got := fields[f.Field]
		switch f.Op {
		case OpEqual:
			if !equalValues(got, want) {
				return false
			}
		case OpArrayContains:
			items, ok := got.([]any)
			if !ok {
				return false
			}
			found := false
			for _, item := range items {
				if equalValues(item, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			c, ok := compareValues(got, want)
			if !ok {
				return false
			}
			switch f.Op {
			case OpLess:
				if c >= 0 {
					return false
				}
			case OpLessEqual:
				if c > 0 {
					return false
				}
			case OpGreater:
				if c <= 0 {
					return false
				}
			case OpGreaterEqual:
				if c < 0 {
					return false
				}
			}
		}
	}
	return true
}

// Apply фильтрует, сортирует и ограничивает набор документов
func Apply(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Match(d.Fields, q.Filters) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c, ok := compareValues(out[i].Fields[o.Field], out[j].Fields[o.Field])
			if !ok || c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func equalValues(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	}
	return 0, false
}
