// Package metrics собирает счетчики Prometheus слоя синхронизации.
// Все методы безопасны для nil-получателя, чтобы тесты могли обходиться без реестра.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics набор коллекторов приложения
type Metrics struct {
	storeMutations      *prometheus.CounterVec
	snapshotsApplied    *prometheus.CounterVec
	subscriptionErrors  *prometheus.CounterVec
	activeSubscriptions prometheus.Gauge
	fanout              *prometheus.CounterVec
	cacheWrites         *prometheus.CounterVec
}

// New создает коллекторы и регистрирует их в reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		storeMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "store_mutations_total",
			Help:      "Mutations issued through entity stores.",
		}, []string{"store", "op", "result"}),
		snapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "remote_snapshots_total",
			Help:      "Remote snapshots applied to entity stores.",
		}, []string{"store", "outcome"}),
		subscriptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "subscription_errors_total",
			Help:      "Live query failures by scope.",
		}, []string{"scope"}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skillswap",
			Name:      "active_subscriptions",
			Help:      "Currently open live queries.",
		}),
		fanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "fanout_notifications_total",
			Help:      "Notification fan-out attempts.",
		}, []string{"type", "result"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "cache_snapshot_writes_total",
			Help:      "Local cache snapshot writes.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.storeMutations,
		m.snapshotsApplied,
		m.subscriptionErrors,
		m.activeSubscriptions,
		m.fanout,
		m.cacheWrites,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Mutation учитывает операцию записи через хранилище
func (m *Metrics) Mutation(store, op string, err error) {
	if m == nil {
		return
	}
	m.storeMutations.WithLabelValues(store, op, result(err)).Inc()
}

// Snapshot учитывает примененный или пропущенный снимок
func (m *Metrics) Snapshot(store string, changed bool) {
	if m == nil {
		return
	}
	outcome := "skipped"
	if changed {
		outcome = "changed"
	}
	m.snapshotsApplied.WithLabelValues(store, outcome).Inc()
}

// SubscriptionError учитывает сбой живого запроса
func (m *Metrics) SubscriptionError(scope string) {
	if m == nil {
		return
	}
	m.subscriptionErrors.WithLabelValues(scope).Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.activeSubscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.activeSubscriptions.Dec()
}

// Fanout учитывает попытку записи уведомления
func (m *Metrics) Fanout(notificationType string, err error) {
	if m == nil {
		return
	}
	m.fanout.WithLabelValues(notificationType, result(err)).Inc()
}

// CacheWrite учитывает запись снимка в локальный кэш
func (m *Metrics) CacheWrite(err error) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(result(err)).Inc()
}
