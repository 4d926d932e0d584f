package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops);
`

// DocumentStore хранит документы коллекций в таблице documents (JSONB)
type DocumentStore struct {
	pool *pgxpool.Pool
}

var _ remote.Backend = (*DocumentStore)(nil)

// NewDocumentStore создает новый экземпляр DocumentStore
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Migrate создает таблицу документов, если ее нет
func (s *DocumentStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ошибка при создании схемы документов: %w", err)
	}
	return nil
}

func encode(doc any) ([]byte, error) {
	fields, err := remote.ToFields(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (s *DocumentStore) Create(ctx context.Context, collection, id string, doc any) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
        INSERT INTO documents (collection, id, data)
        VALUES ($1, $2, $3)
        ON CONFLICT (collection, id) DO NOTHING
    `, collection, id, data)
	if err != nil {
		return fmt.Errorf("ошибка создания документа %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrAlreadyExists)
	}
	return nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, doc any) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO documents (collection, id, data)
        VALUES ($1, $2, $3)
        ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
    `, collection, id, data)
	if err != nil {
		return fmt.Errorf("ошибка записи документа %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update применяет изменения в транзакции под блокировкой строки
func (s *DocumentStore) Update(ctx context.Context, collection, id string, patch remote.Patch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx) // Откатываем транзакцию в случае ошибки

	var raw []byte
	err = tx.QueryRow(ctx, `
        SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE
    `, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("ошибка чтения документа %s/%s: %w", collection, id, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("ошибка декодирования документа %s/%s: %w", collection, id, err)
	}
	next, err := remote.ApplyPatch(fields, patch)
	if err != nil {
		return err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
        UPDATE documents SET data = $3, updated_at = now() WHERE collection = $1 AND id = $2
    `, collection, id, data); err != nil {
		return fmt.Errorf("ошибка обновления документа %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления документа %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
        SELECT data FROM documents WHERE collection = $1 AND id = $2
    `, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return remote.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	if err != nil {
		return remote.Document{}, fmt.Errorf("ошибка чтения документа %s/%s: %w", collection, id, err)
	}
	return decodeDocument(id, raw)
}

func (s *DocumentStore) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	sql, args, err := BuildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к коллекции %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []remote.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		doc, err := decodeDocument(id, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения коллекции %s: %w", q.Collection, err)
	}
	return docs, nil
}

// BuildQuery переводит запрос в SQL над JSONB.
// Равенство и array-contains используют оператор @>, диапазоны сравнивают jsonb-значения.
func BuildQuery(q remote.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range q.Filters {
		switch f.Op {
		case remote.OpEqual, remote.OpArrayContains:
			value := f.Value
			if f.Op == remote.OpArrayContains {
				value = []any{f.Value}
			}
			contained, err := json.Marshal(map[string]any{f.Field: value})
			if err != nil {
				return "", nil, fmt.Errorf("ошибка кодирования фильтра %s: %w", f.Field, err)
			}
			fmt.Fprintf(&b, " AND data @> %s::jsonb", arg(string(contained)))
		default:
			value, err := json.Marshal(f.Value)
			if err != nil {
				return "", nil, fmt.Errorf("ошибка кодирования фильтра %s: %w", f.Field, err)
			}
			fmt.Fprintf(&b, " AND data -> %s::text %s %s::jsonb", arg(f.Field), string(f.Op), arg(string(value)))
		}
	}

	b.WriteString(" ORDER BY ")
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "data -> %s::text %s, ", arg(o.Field), dir)
	}
	b.WriteString("id ASC")

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s", arg(q.Limit))
	}
	return b.String(), args, nil
}

func decodeDocument(id string, raw []byte) (remote.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return remote.Document{}, fmt.Errorf("ошибка декодирования документа %s: %w", id, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return remote.Document{ID: id, Fields: fields}, nil
}
