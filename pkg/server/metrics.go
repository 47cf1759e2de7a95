package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the host.
type Metrics struct {
	host      *Host
	reg       *prometheus.Registry
	startTime time.Time

	playersConnected prometheus.Gauge
	channelsLoaded   prometheus.Gauge
	connectionsTotal prometheus.Counter
	commandsTotal    *prometheus.CounterVec
	reloadsTotal     *prometheus.CounterVec
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates the host metrics and registers them on reg.
func NewMetrics(host *Host, reg *prometheus.Registry, startTime time.Time) *Metrics {
	m := &Metrics{
		host:      host,
		reg:       reg,
		startTime: startTime,
		playersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightchat_players_connected",
			Help: "Number of currently connected players.",
		}),
		channelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightchat_channels_loaded",
			Help: "Number of channels in the active channel set.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightchat_connections_total",
			Help: "Total logins since server start.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightchat_commands_total",
			Help: "Commands processed since server start, by command.",
		}, []string{"command"}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nightchat_reloads_total",
			Help: "Configuration reloads, by result.",
		}, []string{"result"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightchat_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightchat_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightchat_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.playersConnected,
		m.channelsLoaded,
		m.connectionsTotal,
		m.commandsTotal,
		m.reloadsTotal,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

func (m *Metrics) command(name string) {
	if m != nil {
		m.commandsTotal.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connectionsTotal.Inc()
	}
}

func (m *Metrics) reload(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.reloadsTotal.WithLabelValues("ok").Inc()
}

// Update refreshes all gauge metrics from current host state.
func (m *Metrics) Update() {
	m.playersConnected.Set(float64(m.host.Sessions.Count()))
	m.channelsLoaded.Set(float64(m.host.Registry.Snapshot().Len()))
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}
