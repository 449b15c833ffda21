package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/crystal-mush/mushpost/pkg/events"
	"github.com/crystal-mush/mushpost/pkg/msgs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server. Each
// Metrics owns its registry, so several games can coexist in one process.
type Metrics struct {
	game      *Game
	startTime time.Time
	registry  *prometheus.Registry

	playersConnected prometheus.Gauge
	objectsTotal     prometheus.Gauge
	connectionsTotal prometheus.Counter
	commandsTotal    prometheus.Counter
	pendingTotal     prometheus.Gauge
	remindersActive  prometheus.Gauge
	unreadCacheSize  prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics for the game.
func NewMetrics(game *Game, startTime time.Time) *Metrics {
	m := &Metrics{
		game:      game,
		startTime: startTime,
		registry:  prometheus.NewRegistry(),
		playersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_players_connected",
			Help: "Number of currently connected players.",
		}),
		objectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_objects_total",
			Help: "Total number of objects in the database.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushpost_connections_total",
			Help: "Total connections since server start.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushpost_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		pendingTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_messengers_pending",
			Help: "Messengers waiting to be received, across all players.",
		}),
		remindersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_reminders_active",
			Help: "Players with an armed messenger reminder.",
		}),
		unreadCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_unread_cache_entries",
			Help: "Entries in the unread-count cache.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushpost_goroutines",
			Help: "Number of active goroutines.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushpost_events_total",
			Help: "Events emitted on the game bus, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.playersConnected,
		m.objectsTotal,
		m.connectionsTotal,
		m.commandsTotal,
		m.pendingTotal,
		m.remindersActive,
		m.unreadCacheSize,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
		m.eventsTotal,
	)
	m.registerStats()
	if game.EventBus != nil {
		game.EventBus.SubscribeGlobal(m)
	}
	return m
}

// registerStats exposes the messaging counters. They read the current
// System on every scrape.
func (m *Metrics) registerStats() {
	counters := []struct {
		name, help string
		get        func(msgs.StatsSnapshot) int64
	}{
		{"mushpost_messengers_sent_total", "Messengers sent.", func(s msgs.StatsSnapshot) int64 { return s.Sent }},
		{"mushpost_messengers_received_total", "Messengers received.", func(s msgs.StatsSnapshot) int64 { return s.Received }},
		{"mushpost_messengers_forwarded_total", "Messengers forwarded.", func(s msgs.StatsSnapshot) int64 { return s.Forwarded }},
		{"mushpost_messengers_evicted_total", "Messengers evicted from history.", func(s msgs.StatsSnapshot) int64 { return s.Evicted }},
		{"mushpost_messengers_preserved_total", "Messengers preserved.", func(s msgs.StatsSnapshot) int64 { return s.Preserved }},
		{"mushpost_receivers_rejected_total", "Receivers excluded from a send.", func(s msgs.StatsSnapshot) int64 { return s.Rejected }},
		{"mushpost_reminders_fired_total", "Messenger reminders delivered.", func(s msgs.StatsSnapshot) int64 { return s.RemindersFired }},
		{"mushpost_journals_written_total", "Journal entries written.", func(s msgs.StatsSnapshot) int64 { return s.JournalsWritten }},
		{"mushpost_unread_cache_hits_total", "Unread-count cache hits.", func(s msgs.StatsSnapshot) int64 { return s.CacheHits }},
		{"mushpost_unread_cache_misses_total", "Unread-count cache misses.", func(s msgs.StatsSnapshot) int64 { return s.CacheMisses }},
	}
	for _, c := range counters {
		get := c.get
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(get(m.game.Msgs.Stats.Snapshot())) }))
	}
}

// ConnectionOpened counts an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsTotal.Inc()
	}
}

// CommandProcessed counts one dispatched command.
func (m *Metrics) CommandProcessed() {
	if m != nil {
		m.commandsTotal.Inc()
	}
}

// Receive implements events.Subscriber, counting every event on the bus.
func (m *Metrics) Receive(ev events.Event) {
	m.eventsTotal.WithLabelValues(ev.Type.String()).Inc()
}

// Closed implements events.Subscriber.
func (m *Metrics) Closed() bool { return false }

var _ events.Subscriber = (*Metrics)(nil)

// Update refreshes all gauge metrics from current game state.
func (m *Metrics) Update() {
	m.playersConnected.Set(float64(len(m.game.Conns.ConnectedPlayers())))
	m.objectsTotal.Set(float64(m.game.Store.DB().Len()))

	if n, err := m.game.Store.PendingTotal(); err == nil {
		m.pendingTotal.Set(float64(n))
	}
	m.remindersActive.Set(float64(m.game.Msgs.Reminders.Active()))
	m.unreadCacheSize.Set(float64(m.game.Msgs.Cache.Len()))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
