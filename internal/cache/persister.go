package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/metrics"
)

// Section раздел снимка, который отдает и принимает свое состояние
type Section interface {
	CacheKey() string
	CacheValue() any
	Hydrate(raw []byte) error
}

// Persister записывает все разделы одним версионированным снимком.
// Падение между записями не оставляет разделы из разных версий.
type Persister struct {
	kv      KV
	metrics *metrics.Metrics

	mu       sync.Mutex
	sections []Section
	version  int64
}

// NewPersister создает новый экземпляр Persister
func NewPersister(kv KV, m *metrics.Metrics) *Persister {
	return &Persister{kv: kv, metrics: m}
}

// Register добавляет разделы снимка
func (p *Persister) Register(sections ...Section) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections = append(p.sections, sections...)
}

// Version возвращает номер последнего записанного или загруженного снимка
func (p *Persister) Version() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Save сериализует все разделы и записывает их вместе с новой версией
func (p *Persister) Save(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values := make(map[string]string, len(p.sections)+1)
	for _, s := range p.sections {
		raw, err := json.Marshal(s.CacheValue())
		if err != nil {
			p.metrics.CacheWrite(err)
			return fmt.Errorf("encode %s: %w", s.CacheKey(), err)
		}
		values[s.CacheKey()] = string(raw)
	}
	next := p.version + 1
	values[VersionKey] = strconv.FormatInt(next, 10)

	if err := p.kv.SetMany(ctx, values); err != nil {
		p.metrics.CacheWrite(err)
		return fmt.Errorf("write snapshot %d: %w", next, err)
	}
	p.version = next
	p.metrics.CacheWrite(nil)
	return nil
}

// Load гидратирует разделы из последнего снимка.
// Поврежденный раздел пропускается, остальные загружаются.
func (p *Persister) Load(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, ok, err := p.kv.Get(ctx, VersionKey)
	if err != nil {
		return 0, fmt.Errorf("read snapshot version: %w", err)
	}
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snapshot version %q: %w", raw, err)
	}

	for _, s := range p.sections {
		value, ok, err := p.kv.Get(ctx, s.CacheKey())
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", s.CacheKey(), err)
		}
		if !ok {
			continue
		}
		if err := s.Hydrate([]byte(value)); err != nil {
			log.Warn().Err(err).Str("key", s.CacheKey()).Msg("не удалось восстановить раздел кэша")
		}
	}
	p.version = version
	return version, nil
}
