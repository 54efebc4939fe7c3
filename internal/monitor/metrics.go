package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	TicksProcessed   prometheus.Counter
	CandlesClosed    prometheus.Counter
	SignalsGenerated *prometheus.CounterVec
	RiskRejections   *prometheus.CounterVec
	Orders           *prometheus.CounterVec
	TradesClosed     *prometheus.CounterVec
	FeedErrors       *prometheus.CounterVec

	BotState     *prometheus.GaugeVec
	DailyPnL     prometheus.Gauge
	TradesToday  prometheus.Gauge
	OpenPosition prometheus.Gauge
	LastTick     prometheus.Gauge

	TickDuration prometheus.Histogram
	OrderLatency prometheus.Histogram
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "supertrend"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TicksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_processed_total",
			Help: "Quotes processed by the engine loop.",
		}),
		CandlesClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "candles_closed_total",
			Help: "Candles fed into the indicator.",
		}),
		SignalsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "Signals by kind and reason.",
		}, []string{"kind", "reason"}),
		RiskRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_rejections_total",
			Help: "Entries rejected by the risk gate.",
		}, []string{"limit"}),
		Orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total",
			Help: "Orders by final status.",
		}, []string{"status"}),
		TradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_closed_total",
			Help: "Closed trades by exit reason.",
		}, []string{"reason"}),
		FeedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_errors_total",
			Help: "Market data failures by kind.",
		}, []string{"kind"}),
		BotState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bot_state",
			Help: "1 for the current engine state.",
		}, []string{"state"}),
		DailyPnL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_pnl",
			Help: "Realised pnl for the current day.",
		}),
		TradesToday: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "trades_today",
			Help: "Entries taken today.",
		}),
		OpenPosition: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_position",
			Help: "1 long, -1 short, 0 flat.",
		}),
		LastTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_tick_timestamp_seconds",
			Help: "Unix time of the last processed tick.",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Time spent processing one tick, excluding the polling wait.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		OrderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "order_latency_seconds",
			Help:    "Submit-to-fill latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Control API requests.",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Control API latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SetState marks state as the only active engine state.
func (m *Metrics) SetState(state string, all ...string) {
	for _, s := range all {
		m.BotState.WithLabelValues(s).Set(0)
	}
	m.BotState.WithLabelValues(state).Set(1)
}

// Timer helps measure operation duration.
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a timer that records to the given observer.
func NewTimer(o prometheus.Observer) *Timer {
	return &Timer{start: time.Now(), observer: o}
}

// Stop records elapsed time in seconds.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(elapsed.Seconds())
	}
	return elapsed
}
