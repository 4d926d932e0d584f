package media

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type object struct {
	contentType string
	body        []byte
}

// Memory хранит вложения в памяти процесса
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]object
}

// NewMemory создает Memory с префиксом URL baseURL
func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://media"
	}
	return &Memory{baseURL: baseURL, objects: make(map[string]object)}
}

func (m *Memory) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	key := ObjectKey("attachments", name)
	m.mu.Lock()
	m.objects[key] = object{contentType: contentType, body: buf.Bytes()}
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

// Object возвращает содержимое объекта по ключу
func (m *Memory) Object(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.body, obj.contentType, ok
}

// Len возвращает число загруженных объектов
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
