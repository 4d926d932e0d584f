package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// ChangesChannel канал LISTEN/NOTIFY для сигналов об изменениях
const ChangesChannel = "skillswap_changes"

// Listener разносит изменения коллекций через LISTEN/NOTIFY PostgreSQL
type Listener struct {
	conn     *sql.DB
	listener *pq.Listener
	local    *remote.LocalBroker
	done     chan struct{}
}

var _ remote.Broker = (*Listener)(nil)

// NewListener подключается к базе и подписывается на канал изменений
func NewListener(databaseURL string) (*Listener, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения для NOTIFY: %w", err)
	}

	onEvent := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("событие слушателя PostgreSQL")
		}
	}
	pl := pq.NewListener(databaseURL, 10*time.Second, time.Minute, onEvent)
	if err := pl.Listen(ChangesChannel); err != nil {
		conn.Close()
		pl.Close()
		return nil, fmt.Errorf("ошибка LISTEN %s: %w", ChangesChannel, err)
	}

	l := &Listener{
		conn:     conn,
		listener: pl,
		local:    remote.NewLocalBroker(),
		done:     make(chan struct{}),
	}
	go l.run()
	return l, nil
}

func (l *Listener) run() {
	defer close(l.done)
	for n := range l.listener.Notify {
		// nil приходит после переподключения: уведомления могли потеряться
		if n == nil {
			log.Info().Msg("слушатель PostgreSQL переподключился")
			continue
		}
		l.local.Notify(n.Extra)
	}
}

// Publish отправляет NOTIFY с именем коллекции
func (l *Listener) Publish(ctx context.Context, collection string) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_notify($1, $2)", ChangesChannel, collection); err != nil {
		return fmt.Errorf("ошибка NOTIFY: %w", err)
	}
	return nil
}

// Listen регистрирует слушателя коллекции
func (l *Listener) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	return l.local.Listen(ctx, collection)
}

// Close останавливает слушателя и закрывает соединения
func (l *Listener) Close() error {
	err := l.listener.Close()
	<-l.done
	if cerr := l.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
